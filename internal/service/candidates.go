package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hireloop/hireloop/internal/model"
	"github.com/hireloop/hireloop/internal/repository"
)

type candidateStore interface {
	GetCandidate(ctx context.Context, companyID, id string) (*model.CandidateProfile, error)
	UpdateCandidate(ctx context.Context, c *model.CandidateProfile) error
	DeleteCandidate(ctx context.Context, companyID, id string) error
	ListCandidates(ctx context.Context, companyID, cursor string, limit int) ([]*model.CandidateProfile, string, error)
	SearchTalent(ctx context.Context, companyID string, q model.TalentQuery, cursor string, limit int) ([]*model.CandidateProfile, string, error)
}

// CandidateService manages a company's candidate pool.
type CandidateService struct {
	store  candidateStore
	ent    EntitlementSource
	logger *slog.Logger
	now    func() time.Time
}

// NewCandidateService creates a CandidateService.
func NewCandidateService(store candidateStore, ent EntitlementSource, logger *slog.Logger) *CandidateService {
	return &CandidateService{
		store:  store,
		ent:    ent,
		logger: logger.With("component", "candidates"),
		now:    time.Now,
	}
}

// CandidateUpdate holds editable profile fields; nil leaves a field as is.
type CandidateUpdate struct {
	FullName        *string
	Phone           *string
	Location        *string
	Headline        *string
	Summary         *string
	ResumeText      *string
	Skills          []string
	YearsExperience *int
	LinkedInURL     *string
}

// GetCandidate returns one candidate.
func (s *CandidateService) GetCandidate(ctx context.Context, companyID, id string) (*model.CandidateProfile, error) {
	c, err := s.store.GetCandidate(ctx, companyID, id)
	if errors.Is(err, repository.ErrCandidateNotFound) {
		return nil, ErrCandidateNotFound
	}
	return c, err
}

// ListCandidates pages through the pool, most recently updated first.
func (s *CandidateService) ListCandidates(ctx context.Context, companyID, cursor string, limit int) ([]*model.CandidateProfile, string, error) {
	out, next, err := s.store.ListCandidates(ctx, companyID, cursor, clampLimit(limit))
	if errors.Is(err, repository.ErrInvalidCursor) {
		return nil, "", invalidf("invalid cursor")
	}
	return out, next, err
}

// UpdateCandidate edits a profile. The email cannot change.
func (s *CandidateService) UpdateCandidate(ctx context.Context, companyID, id string, in CandidateUpdate) (*model.CandidateProfile, error) {
	c, err := s.GetCandidate(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if v := trimmed(in.FullName); v != nil {
		if *v == "" {
			return nil, invalidf("full_name must not be empty")
		}
		c.FullName = *v
	}
	if v := trimmed(in.Phone); v != nil {
		c.Phone = *v
	}
	if v := trimmed(in.Location); v != nil {
		c.Location = *v
	}
	if v := trimmed(in.Headline); v != nil {
		c.Headline = *v
	}
	if in.Summary != nil {
		c.Summary = *in.Summary
	}
	if in.ResumeText != nil {
		c.ResumeText = *in.ResumeText
	}
	if in.Skills != nil {
		c.Skills = normalizeSkills(in.Skills)
	}
	if in.YearsExperience != nil {
		if *in.YearsExperience < 0 {
			return nil, invalidf("years_experience must not be negative")
		}
		c.YearsExperience = *in.YearsExperience
	}
	if v := trimmed(in.LinkedInURL); v != nil {
		c.LinkedInURL = *v
	}
	c.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateCandidate(ctx, c); err != nil {
		if errors.Is(err, repository.ErrCandidateNotFound) {
			return nil, ErrCandidateNotFound
		}
		return nil, err
	}
	return c, nil
}

// DeleteCandidate erases a candidate and their applications.
func (s *CandidateService) DeleteCandidate(ctx context.Context, companyID, id string) error {
	if err := s.store.DeleteCandidate(ctx, companyID, id); err != nil {
		if errors.Is(err, repository.ErrCandidateNotFound) {
			return ErrCandidateNotFound
		}
		return err
	}
	s.logger.Info("candidate_erased", "company_id", companyID, "candidate_id", id)
	return nil
}

// SearchTalent queries the pool by text, skills, location and experience.
func (s *CandidateService) SearchTalent(ctx context.Context, companyID string, q model.TalentQuery, cursor string, limit int) ([]*model.CandidateProfile, string, error) {
	ent, err := s.ent.Entitlements(ctx, companyID)
	if err != nil {
		return nil, "", err
	}
	if !ent.HasFeature(model.FeatureTalentSearch) {
		return nil, "", ErrFeatureNotAvailable
	}
	if q.MinYears < 0 {
		return nil, "", invalidf("min_years must not be negative")
	}
	q.Text = strings.TrimSpace(q.Text)
	q.Location = strings.TrimSpace(q.Location)
	q.Skills = normalizeSkills(q.Skills)

	out, next, err := s.store.SearchTalent(ctx, companyID, q, cursor, clampLimit(limit))
	if errors.Is(err, repository.ErrInvalidCursor) {
		return nil, "", invalidf("invalid cursor")
	}
	return out, next, err
}
