package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/repository"
)

type jobStore interface {
	txRunner
	CreateJob(ctx context.Context, j *model.Job) error
	GetJob(ctx context.Context, companyID, id string) (*model.Job, error)
	UpdateJob(ctx context.Context, j *model.Job) error
	ListJobs(ctx context.Context, filter repository.JobFilter, cursor string, limit int) ([]*model.Job, string, error)
	ListOpenJobs(ctx context.Context, companyID string) ([]*model.Job, error)
	CountActiveJobs(ctx context.Context, companyID string) (int, error)
	// GetSubscriptionForUpdate serializes publishes of one company.
	GetSubscriptionForUpdate(ctx context.Context, companyID string) (*model.Subscription, error)
	ListDailyJobViews(ctx context.Context, jobID string, from, to time.Time) ([]*model.DailyJobViews, error)
	CountJobApplications(ctx context.Context, companyID, jobID string, from, to time.Time) (int64, error)
}

// JobService manages job postings.
type JobService struct {
	store  jobStore
	ent    EntitlementSource
	logger *slog.Logger
	now    func() time.Time
}

// NewJobService creates a JobService.
func NewJobService(store jobStore, ent EntitlementSource, logger *slog.Logger) *JobService {
	return &JobService{
		store:  store,
		ent:    ent,
		logger: logger.With("component", "jobs"),
		now:    time.Now,
	}
}

// JobInput holds job fields. On update nil fields are left unchanged.
type JobInput struct {
	Title          *string
	Department     *string
	Location       *string
	EmploymentType *string
	Remote         *bool
	Description    *string
	Requirements   []string
	SalaryMin      *int
	SalaryMax      *int
	Currency       *string
}

// CreateJob creates a draft job.
func (s *JobService) CreateJob(ctx context.Context, companyID, userID string, in JobInput) (*model.Job, error) {
	now := s.now().UTC()
	job := &model.Job{
		ID:             newID(),
		CompanyID:      companyID,
		EmploymentType: model.EmploymentFullTime,
		Requirements:   []string{},
		Status:         model.JobStatusDraft,
		CreatedBy:      userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := applyJobInput(job, in); err != nil {
		return nil, err
	}
	if job.Title == "" {
		return nil, invalidf("title is required")
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, mapJobErr(err)
	}
	s.logger.Info("job_created", "company_id", companyID, "job_id", job.ID)
	return job, nil
}

// GetJob returns a company's job.
func (s *JobService) GetJob(ctx context.Context, companyID, id string) (*model.Job, error) {
	job, err := s.store.GetJob(ctx, companyID, id)
	if err != nil {
		return nil, mapJobErr(err)
	}
	return job, nil
}

// ListJobs pages through a company's jobs. Archived jobs are listed only
// when asked for by status.
func (s *JobService) ListJobs(ctx context.Context, companyID string, status model.JobStatus, cursor string, limit int) ([]*model.Job, string, error) {
	if status != "" && !slices.Contains([]model.JobStatus{
		model.JobStatusDraft, model.JobStatusOpen, model.JobStatusClosed, model.JobStatusArchived,
	}, status) {
		return nil, "", invalidf("unknown status %q", status)
	}
	jobs, next, err := s.store.ListJobs(ctx, repository.JobFilter{CompanyID: companyID, Status: status}, cursor, clampLimit(limit))
	if errors.Is(err, repository.ErrInvalidCursor) {
		return nil, "", invalidf("invalid cursor")
	}
	return jobs, next, err
}

// GetOpenJob returns a job shown on the careers page. Jobs that are not
// open are reported as not found.
func (s *JobService) GetOpenJob(ctx context.Context, companyID, id string) (*model.Job, error) {
	job, err := s.GetJob(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusOpen {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListOpenJobs returns the careers page listing of a company.
func (s *JobService) ListOpenJobs(ctx context.Context, companyID string) ([]*model.Job, error) {
	return s.store.ListOpenJobs(ctx, companyID)
}

// UpdateJob edits job fields. Archived jobs are read-only.
func (s *JobService) UpdateJob(ctx context.Context, companyID, id string, in JobInput) (*model.Job, error) {
	job, err := s.GetJob(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if job.Status == model.JobStatusArchived {
		return nil, ErrInvalidJobTransition
	}
	if err := applyJobInput(job, in); err != nil {
		return nil, err
	}
	job.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, mapJobErr(err)
	}
	return job, nil
}

// PublishJob opens a draft or closed job, enforcing the plan's active job
// limit.
func (s *JobService) PublishJob(ctx context.Context, companyID, id string) (*model.Job, error) {
	ent, err := s.ent.Entitlements(ctx, companyID)
	if err != nil {
		return nil, err
	}

	var job *model.Job
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.GetSubscriptionForUpdate(ctx, companyID); err != nil {
			if errors.Is(err, repository.ErrSubscriptionNotFound) {
				return ErrSubscriptionNotFound
			}
			return err
		}
		job, err = s.GetJob(ctx, companyID, id)
		if err != nil {
			return err
		}
		if !job.Status.CanTransitionTo(model.JobStatusOpen) {
			return ErrInvalidJobTransition
		}
		active, err := s.store.CountActiveJobs(ctx, companyID)
		if err != nil {
			return err
		}
		if ent.JobLimitReached(active) {
			return ErrJobLimitReached
		}

		now := s.now().UTC()
		job.Status = model.JobStatusOpen
		job.ClosedAt = nil
		if job.PublishedAt == nil {
			job.PublishedAt = &now
		}
		job.UpdatedAt = now
		return s.store.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, mapJobErr(err)
	}
	s.logger.Info("job_published", "company_id", companyID, "job_id", id)
	return job, nil
}

// CloseJob stops an open job from accepting applications.
func (s *JobService) CloseJob(ctx context.Context, companyID, id string) (*model.Job, error) {
	return s.transition(ctx, companyID, id, model.JobStatusClosed)
}

// ArchiveJob soft-deletes a job.
func (s *JobService) ArchiveJob(ctx context.Context, companyID, id string) (*model.Job, error) {
	return s.transition(ctx, companyID, id, model.JobStatusArchived)
}

func (s *JobService) transition(ctx context.Context, companyID, id string, to model.JobStatus) (*model.Job, error) {
	job, err := s.GetJob(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.CanTransitionTo(to) {
		return nil, ErrInvalidJobTransition
	}
	now := s.now().UTC()
	job.Status = to
	if to == model.JobStatusClosed {
		job.ClosedAt = &now
	}
	job.UpdatedAt = now
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, mapJobErr(err)
	}
	s.logger.Info("job_status_changed", "company_id", companyID, "job_id", id, "status", to)
	return job, nil
}

func applyJobInput(job *model.Job, in JobInput) error {
	if v := trimmed(in.Title); v != nil {
		if *v == "" {
			return invalidf("title must not be empty")
		}
		job.Title = *v
	}
	if v := trimmed(in.Department); v != nil {
		job.Department = *v
	}
	if v := trimmed(in.Location); v != nil {
		job.Location = *v
	}
	if in.EmploymentType != nil {
		if !slices.Contains(model.ValidEmploymentTypes, *in.EmploymentType) {
			return invalidf("employment_type must be one of %s", strings.Join(model.ValidEmploymentTypes, ", "))
		}
		job.EmploymentType = *in.EmploymentType
	}
	if in.Remote != nil {
		job.Remote = *in.Remote
	}
	if in.Description != nil {
		job.Description = *in.Description
	}
	if in.Requirements != nil {
		reqs := make([]string, 0, len(in.Requirements))
		for _, r := range in.Requirements {
			if r = strings.TrimSpace(r); r != "" {
				reqs = append(reqs, r)
			}
		}
		job.Requirements = reqs
	}
	if in.SalaryMin != nil {
		job.SalaryMin = in.SalaryMin
	}
	if in.SalaryMax != nil {
		job.SalaryMax = in.SalaryMax
	}
	if (job.SalaryMin != nil && *job.SalaryMin < 0) || (job.SalaryMax != nil && *job.SalaryMax < 0) {
		return invalidf("salary must not be negative")
	}
	if !job.SalaryRangeValid() {
		return invalidf("salary_min must not exceed salary_max")
	}
	if v := trimmed(in.Currency); v != nil {
		job.Currency = strings.ToUpper(*v)
	}
	return nil
}

func mapJobErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrJobNotFound):
		return ErrJobNotFound
	case errors.Is(err, repository.ErrJobConstraint):
		return invalidf("job violates a constraint")
	}
	return err
}
