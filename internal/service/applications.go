package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hireloop/hireloop/internal/metrics"
	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/repository"
)

type applicationStore interface {
	txRunner
	GetJob(ctx context.Context, companyID, id string) (*model.Job, error)
	UpsertCandidate(ctx context.Context, c *model.CandidateProfile) error
	CreateApplication(ctx context.Context, a *model.Application) error
	GetApplication(ctx context.Context, companyID, id string) (*model.Application, error)
	ListApplicationsByJob(ctx context.Context, companyID, jobID string, sort repository.ApplicationSort, cursor string, limit int) ([]*model.Application, string, error)
	ListApplicationsByCandidate(ctx context.Context, companyID, candidateID string) ([]*model.Application, error)
	UpdateApplicationStatus(ctx context.Context, a *model.Application, from model.ApplicationStatus) error
	QueueScoring(ctx context.Context, companyID, id string) error
	CreateApplicationNote(ctx context.Context, n *model.ApplicationNote) error
	ListApplicationNotes(ctx context.Context, applicationID string) ([]*model.ApplicationNote, error)
}

// ApplicationService runs the hiring pipeline.
type ApplicationService struct {
	store     applicationStore
	ent       EntitlementSource
	publisher Publisher
	metrics   metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewApplicationService creates an ApplicationService.
func NewApplicationService(store applicationStore, ent EntitlementSource, publisher Publisher, recorder metrics.Recorder, logger *slog.Logger) *ApplicationService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &ApplicationService{
		store:     store,
		ent:       ent,
		publisher: publisher,
		metrics:   recorder,
		logger:    logger.With("component", "applications"),
		now:       time.Now,
	}
}

// CandidateInput is what an applicant tells us about themselves.
type CandidateInput struct {
	Email           string
	FullName        string
	Phone           string
	Location        string
	Headline        string
	Summary         string
	ResumeText      string
	Skills          []string
	YearsExperience int
	LinkedInURL     string
}

// ApplyInput is a new application.
type ApplyInput struct {
	JobID       string
	Candidate   CandidateInput
	CoverLetter string
	Source      string
}

// Apply records an application to an open job, upserting the candidate by
// email. Tenants with AI scoring get the application queued for scoring.
func (s *ApplicationService) Apply(ctx context.Context, companyID string, in ApplyInput) (*model.Application, error) {
	email := normalizeEmail(in.Candidate.Email)
	name := strings.TrimSpace(in.Candidate.FullName)
	if email == "" || !strings.Contains(email, "@") || name == "" {
		return nil, invalidf("candidate email and full name are required")
	}
	if in.Candidate.YearsExperience < 0 {
		return nil, invalidf("years_experience must not be negative")
	}

	ent, err := s.ent.Entitlements(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if !ent.CanWrite() {
		// A lapsed tenant's careers page is closed.
		return nil, ErrJobNotOpen
	}

	job, err := s.store.GetJob(ctx, companyID, in.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if !job.IsOpen() {
		return nil, ErrJobNotOpen
	}

	now := s.now().UTC()
	cand := &model.CandidateProfile{
		ID:              newID(),
		CompanyID:       companyID,
		Email:           email,
		FullName:        name,
		Phone:           strings.TrimSpace(in.Candidate.Phone),
		Location:        strings.TrimSpace(in.Candidate.Location),
		Headline:        strings.TrimSpace(in.Candidate.Headline),
		Summary:         in.Candidate.Summary,
		ResumeText:      in.Candidate.ResumeText,
		Skills:          normalizeSkills(in.Candidate.Skills),
		YearsExperience: in.Candidate.YearsExperience,
		LinkedInURL:     strings.TrimSpace(in.Candidate.LinkedInURL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	scoreStatus := model.ScoreNotRequested
	if ent.HasFeature(model.FeatureAIScoring) {
		scoreStatus = model.ScorePending
	}
	app := &model.Application{
		ID:          newID(),
		CompanyID:   companyID,
		JobID:       job.ID,
		Status:      model.AppStatusApplied,
		CoverLetter: in.CoverLetter,
		Source:      strings.TrimSpace(in.Source),
		ScoreStatus: scoreStatus,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpsertCandidate(ctx, cand); err != nil {
			return err
		}
		app.CandidateID = cand.ID
		if err := s.store.CreateApplication(ctx, app); err != nil {
			if errors.Is(err, repository.ErrAlreadyApplied) {
				return ErrAlreadyApplied
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	app.Candidate = cand

	s.metrics.IncApplicationCreated()
	s.logger.Info("application_created",
		"company_id", companyID,
		"application_id", app.ID,
		"job_id", job.ID,
		"score_status", app.ScoreStatus,
	)
	s.publish(ctx, companyID, model.EventApplicationCreated, model.ApplicationEventData{
		ApplicationID: app.ID,
		JobID:         app.JobID,
		CandidateID:   app.CandidateID,
		Status:        string(app.Status),
	})
	return app, nil
}

// GetApplication returns an application with its candidate.
func (s *ApplicationService) GetApplication(ctx context.Context, companyID, id string) (*model.Application, error) {
	app, err := s.store.GetApplication(ctx, companyID, id)
	if errors.Is(err, repository.ErrApplicationNotFound) {
		return nil, ErrApplicationNotFound
	}
	return app, err
}

// ListByJob returns a job's applicants, ranked by score (unscored last)
// or by recency.
func (s *ApplicationService) ListByJob(ctx context.Context, companyID, jobID string, sort repository.ApplicationSort, cursor string, limit int) ([]*model.Application, string, error) {
	switch sort {
	case "":
		sort = repository.SortByScore
	case repository.SortByScore, repository.SortByRecent:
	default:
		return nil, "", invalidf("sort must be score or recent")
	}
	if _, err := s.store.GetJob(ctx, companyID, jobID); err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, "", ErrJobNotFound
		}
		return nil, "", err
	}
	apps, next, err := s.store.ListApplicationsByJob(ctx, companyID, jobID, sort, cursor, clampLimit(limit))
	if errors.Is(err, repository.ErrInvalidCursor) {
		return nil, "", invalidf("invalid cursor")
	}
	return apps, next, err
}

// ListByCandidate returns every application of a candidate.
func (s *ApplicationService) ListByCandidate(ctx context.Context, companyID, candidateID string) ([]*model.Application, error) {
	return s.store.ListApplicationsByCandidate(ctx, companyID, candidateID)
}

// MoveStage advances, rejects or withdraws an application.
func (s *ApplicationService) MoveStage(ctx context.Context, companyID, id string, to model.ApplicationStatus, reason string) (*model.Application, error) {
	if !to.IsValid() {
		return nil, invalidf("unknown status %q", to)
	}
	app, err := s.GetApplication(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	from := app.Status
	if !from.CanTransitionTo(to) {
		return nil, ErrInvalidStageTransition
	}

	app.Status = to
	if to == model.AppStatusRejected {
		app.RejectionReason = strings.TrimSpace(reason)
	}
	app.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateApplicationStatus(ctx, app, from); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, ErrStageConflict
		}
		return nil, err
	}

	s.logger.Info("application_stage_changed",
		"company_id", companyID,
		"application_id", id,
		"from", from,
		"to", to,
	)
	s.publish(ctx, companyID, model.EventApplicationStatusChanged, model.ApplicationEventData{
		ApplicationID:  app.ID,
		JobID:          app.JobID,
		CandidateID:    app.CandidateID,
		Status:         string(to),
		PreviousStatus: string(from),
	})
	return app, nil
}

// AddNote attaches a recruiter note to an application.
func (s *ApplicationService) AddNote(ctx context.Context, companyID, id, authorID, body string) (*model.ApplicationNote, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, invalidf("note body is required")
	}
	if _, err := s.GetApplication(ctx, companyID, id); err != nil {
		return nil, err
	}
	note := &model.ApplicationNote{
		ID:            newID(),
		ApplicationID: id,
		AuthorID:      authorID,
		Body:          body,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateApplicationNote(ctx, note); err != nil {
		if errors.Is(err, repository.ErrApplicationNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, err
	}
	return note, nil
}

// ListNotes returns an application's notes, oldest first.
func (s *ApplicationService) ListNotes(ctx context.Context, companyID, id string) ([]*model.ApplicationNote, error) {
	if _, err := s.GetApplication(ctx, companyID, id); err != nil {
		return nil, err
	}
	return s.store.ListApplicationNotes(ctx, id)
}

// Rescore queues an application for another AI assessment.
func (s *ApplicationService) Rescore(ctx context.Context, companyID, id string) error {
	ent, err := s.ent.Entitlements(ctx, companyID)
	if err != nil {
		return err
	}
	if !ent.HasFeature(model.FeatureAIScoring) {
		return ErrFeatureNotAvailable
	}
	if err := s.store.QueueScoring(ctx, companyID, id); err != nil {
		if errors.Is(err, repository.ErrApplicationNotFound) {
			return ErrApplicationNotFound
		}
		return err
	}
	s.logger.Info("application_rescore_queued", "company_id", companyID, "application_id", id)
	return nil
}

func (s *ApplicationService) publish(ctx context.Context, companyID string, et model.EventType, data any) {
	if err := s.publisher.Publish(ctx, companyID, et, data); err != nil {
		s.logger.Warn("publish failed", "event_type", et, "company_id", companyID, "error", err)
	}
}

// normalizeSkills trims, drops empties and removes case-insensitive
// duplicates, keeping first spelling.
func normalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]bool, len(skills))
	for _, sk := range skills {
		sk = strings.TrimSpace(sk)
		key := strings.ToLower(sk)
		if sk == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sk)
	}
	return out
}
