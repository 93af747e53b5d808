package model

import (
	"slices"
	"time"
)

// JobStatus represents the lifecycle state of a job posting.
type JobStatus string

const (
	JobStatusDraft    JobStatus = "draft"
	JobStatusOpen     JobStatus = "open"
	JobStatusClosed   JobStatus = "closed"
	JobStatusArchived JobStatus = "archived"
)

// EmploymentType constants.
const (
	EmploymentFullTime   = "full_time"
	EmploymentPartTime   = "part_time"
	EmploymentContract   = "contract"
	EmploymentInternship = "internship"
)

// ValidEmploymentTypes contains all valid employment types.
var ValidEmploymentTypes = []string{EmploymentFullTime, EmploymentPartTime, EmploymentContract, EmploymentInternship}

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusDraft:  {JobStatusOpen, JobStatusArchived},
	JobStatusOpen:   {JobStatusClosed, JobStatusArchived},
	JobStatusClosed: {JobStatusOpen, JobStatusArchived},
}

// CanTransitionTo reports whether a job may move from s to next.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	return slices.Contains(jobTransitions[s], next)
}

// Job is a position a company is hiring for.
type Job struct {
	ID             string     `json:"id"`
	CompanyID      string     `json:"company_id"`
	Title          string     `json:"title"`
	Department     string     `json:"department,omitempty"`
	Location       string     `json:"location,omitempty"`
	EmploymentType string     `json:"employment_type"`
	Remote         bool       `json:"remote"`
	Description    string     `json:"description"`
	Requirements   []string   `json:"requirements"`
	SalaryMin      *int       `json:"salary_min,omitempty"`
	SalaryMax      *int       `json:"salary_max,omitempty"`
	Currency       string     `json:"currency,omitempty"`
	Status         JobStatus  `json:"status"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsOpen returns true if the job accepts applications.
func (j *Job) IsOpen() bool {
	return j.Status == JobStatusOpen
}

// SalaryRangeValid reports whether the salary bounds are consistent.
func (j *Job) SalaryRangeValid() bool {
	if j.SalaryMin == nil || j.SalaryMax == nil {
		return true
	}
	return *j.SalaryMin <= *j.SalaryMax
}

// PublicJob is the careers page view of a job.
type PublicJob struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Department     string     `json:"department,omitempty"`
	Location       string     `json:"location,omitempty"`
	EmploymentType string     `json:"employment_type"`
	Remote         bool       `json:"remote"`
	Description    string     `json:"description"`
	Requirements   []string   `json:"requirements"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
}

// ToPublic strips internal fields from a job.
func (j *Job) ToPublic() PublicJob {
	reqs := j.Requirements
	if reqs == nil {
		reqs = []string{}
	}
	return PublicJob{
		ID:             j.ID,
		Title:          j.Title,
		Department:     j.Department,
		Location:       j.Location,
		EmploymentType: j.EmploymentType,
		Remote:         j.Remote,
		Description:    j.Description,
		Requirements:   reqs,
		PublishedAt:    j.PublishedAt,
	}
}
