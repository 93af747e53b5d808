package model

import (
	"slices"
	"time"
)

// ApplicationStatus is a stage in the hiring pipeline.
type ApplicationStatus string

const (
	AppStatusApplied   ApplicationStatus = "applied"
	AppStatusScreening ApplicationStatus = "screening"
	AppStatusInterview ApplicationStatus = "interview"
	AppStatusOffer     ApplicationStatus = "offer"
	AppStatusHired     ApplicationStatus = "hired"
	AppStatusRejected  ApplicationStatus = "rejected"
	AppStatusWithdrawn ApplicationStatus = "withdrawn"
)

// pipeline is the forward order of non-terminal stages.
var pipeline = []ApplicationStatus{
	AppStatusApplied,
	AppStatusScreening,
	AppStatusInterview,
	AppStatusOffer,
	AppStatusHired,
}

// IsValid checks if the status is known.
func (s ApplicationStatus) IsValid() bool {
	return slices.Contains(pipeline, s) || s == AppStatusRejected || s == AppStatusWithdrawn
}

// IsTerminal returns true for hired, rejected and withdrawn.
func (s ApplicationStatus) IsTerminal() bool {
	return s == AppStatusHired || s == AppStatusRejected || s == AppStatusWithdrawn
}

// CanTransitionTo reports whether an application may move from s to next.
// Stages advance one step at a time; rejection and withdrawal are allowed
// from any non-terminal stage.
func (s ApplicationStatus) CanTransitionTo(next ApplicationStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == AppStatusRejected || next == AppStatusWithdrawn {
		return true
	}
	i := slices.Index(pipeline, s)
	j := slices.Index(pipeline, next)
	return i >= 0 && j == i+1
}

// ScoreStatus tracks the AI scoring state of an application.
type ScoreStatus string

const (
	ScoreNotRequested ScoreStatus = "not_requested"
	ScorePending      ScoreStatus = "pending"
	ScoreScored       ScoreStatus = "scored"
	ScoreFailed       ScoreStatus = "failed"
	ScoreSkippedQuota ScoreStatus = "skipped_quota"
)

// ScoreDetails holds the structured part of an AI assessment.
type ScoreDetails struct {
	Strengths []string `json:"strengths"`
	Concerns  []string `json:"concerns"`
}

// Application is a candidate's application to a job.
type Application struct {
	ID              string            `json:"id"`
	CompanyID       string            `json:"company_id"`
	JobID           string            `json:"job_id"`
	CandidateID     string            `json:"candidate_id"`
	Status          ApplicationStatus `json:"status"`
	CoverLetter     string            `json:"cover_letter,omitempty"`
	Source          string            `json:"source,omitempty"`
	Score           *int              `json:"score,omitempty"`
	ScoreSummary    string            `json:"score_summary,omitempty"`
	ScoreDetails    *ScoreDetails     `json:"score_details,omitempty"`
	ScoreStatus     ScoreStatus       `json:"score_status"`
	ScoredAt        *time.Time        `json:"scored_at,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`

	// Populated on detail and ranked list queries.
	Candidate *CandidateProfile `json:"candidate,omitempty"`
}

// ApplicationNote is an internal recruiter note on an application.
type ApplicationNote struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	AuthorID      string    `json:"author_id"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
}

// ScoringJob bundles everything the scorer needs for one application.
type ScoringJob struct {
	Application *Application
	Job         *Job
	Candidate   *CandidateProfile
}
