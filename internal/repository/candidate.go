package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/hireloop/hireloop/internal/model"
)

// ErrCandidateNotFound is returned when a candidate does not exist in the tenant.
var ErrCandidateNotFound = errors.New("candidate not found")

const candidateColumns = `id, company_id, email, full_name, phone, location, headline, summary,
	resume_text, skills, years_experience, linkedin_url, created_at, updated_at`

// UpsertCandidate inserts a candidate or refreshes the profile already held
// for the same (company, email). Empty incoming fields keep stored values.
// c is updated with the stored row.
func (r *Repository) UpsertCandidate(ctx context.Context, c *model.CandidateProfile) error {
	row := r.db(ctx).QueryRow(ctx, `
		INSERT INTO candidate_profiles (id, company_id, email, full_name, phone, location, headline, summary,
			resume_text, skills, years_experience, linkedin_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (company_id, email) DO UPDATE SET
			full_name        = EXCLUDED.full_name,
			phone            = COALESCE(NULLIF(EXCLUDED.phone, ''), candidate_profiles.phone),
			location         = COALESCE(NULLIF(EXCLUDED.location, ''), candidate_profiles.location),
			headline         = COALESCE(NULLIF(EXCLUDED.headline, ''), candidate_profiles.headline),
			summary          = COALESCE(NULLIF(EXCLUDED.summary, ''), candidate_profiles.summary),
			resume_text      = COALESCE(NULLIF(EXCLUDED.resume_text, ''), candidate_profiles.resume_text),
			skills           = CASE WHEN cardinality(EXCLUDED.skills) > 0 THEN EXCLUDED.skills ELSE candidate_profiles.skills END,
			years_experience = GREATEST(EXCLUDED.years_experience, candidate_profiles.years_experience),
			linkedin_url     = COALESCE(NULLIF(EXCLUDED.linkedin_url, ''), candidate_profiles.linkedin_url),
			updated_at       = EXCLUDED.updated_at
		RETURNING `+candidateColumns,
		c.ID, c.CompanyID, normalizeEmail(c.Email), c.FullName, c.Phone, c.Location, c.Headline, c.Summary,
		c.ResumeText, pq.Array(nonNil(c.Skills)), c.YearsExperience, c.LinkedInURL, c.CreatedAt, c.UpdatedAt,
	)
	stored, err := scanCandidate(row)
	if err != nil {
		return fmt.Errorf("failed to upsert candidate: %w", err)
	}
	*c = *stored
	return nil
}

// GetCandidate retrieves a candidate scoped to a company.
func (r *Repository) GetCandidate(ctx context.Context, companyID, id string) (*model.CandidateProfile, error) {
	c, err := scanCandidate(r.db(ctx).QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM candidate_profiles WHERE company_id = $1 AND id = $2`, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCandidateNotFound
		}
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return c, nil
}

// UpdateCandidate writes a candidate's editable fields. The email is the
// identity key and cannot change.
func (r *Repository) UpdateCandidate(ctx context.Context, c *model.CandidateProfile) error {
	result, err := r.db(ctx).Exec(ctx, `
		UPDATE candidate_profiles
		SET full_name = $3, phone = $4, location = $5, headline = $6, summary = $7, resume_text = $8,
			skills = $9, years_experience = $10, linkedin_url = $11, updated_at = $12
		WHERE company_id = $1 AND id = $2
	`, c.CompanyID, c.ID, c.FullName, c.Phone, c.Location, c.Headline, c.Summary, c.ResumeText,
		pq.Array(nonNil(c.Skills)), c.YearsExperience, c.LinkedInURL, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update candidate: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCandidateNotFound
	}
	return nil
}

// DeleteCandidate erases a candidate. Applications cascade with it, which
// takes their cover letters and scoring text along.
func (r *Repository) DeleteCandidate(ctx context.Context, companyID, id string) error {
	result, err := r.db(ctx).Exec(ctx,
		`DELETE FROM candidate_profiles WHERE company_id = $1 AND id = $2`, companyID, id)
	if err != nil {
		return fmt.Errorf("failed to delete candidate: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCandidateNotFound
	}
	return nil
}

// ListCandidates returns a page of candidates, most recently updated first.
func (r *Repository) ListCandidates(ctx context.Context, companyID, cursor string, limit int) ([]*model.CandidateProfile, string, error) {
	return r.SearchTalent(ctx, companyID, model.TalentQuery{}, cursor, limit)
}

// SearchTalent filters a company's candidate pool. Text matches name,
// headline and summary case-insensitively; skills match on any overlap.
func (r *Repository) SearchTalent(ctx context.Context, companyID string, q model.TalentQuery, cursor string, limit int) ([]*model.CandidateProfile, string, error) {
	cur, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	query := `SELECT ` + candidateColumns + ` FROM candidate_profiles WHERE company_id = $1`
	args := []any{companyID}

	if text := strings.TrimSpace(q.Text); text != "" {
		args = append(args, "%"+escapeLike(text)+"%")
		n := len(args)
		query += fmt.Sprintf(" AND (full_name ILIKE $%d OR headline ILIKE $%d OR summary ILIKE $%d)", n, n, n)
	}
	if skills := lowerAll(q.Skills); len(skills) > 0 {
		args = append(args, pq.Array(skills))
		query += fmt.Sprintf(" AND ARRAY(SELECT lower(s) FROM unnest(skills) s) && $%d::text[]", len(args))
	}
	if loc := strings.TrimSpace(q.Location); loc != "" {
		args = append(args, "%"+escapeLike(loc)+"%")
		query += fmt.Sprintf(" AND location ILIKE $%d", len(args))
	}
	if q.MinYears > 0 {
		args = append(args, q.MinYears)
		query += fmt.Sprintf(" AND years_experience >= $%d", len(args))
	}
	if cur != nil {
		args = append(args, cur.CreatedAt, cur.ID)
		query += fmt.Sprintf(" AND (updated_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY updated_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to search candidates: %w", err)
	}
	defer rows.Close()

	var out []*model.CandidateProfile
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating candidates: %w", err)
	}

	out, next := page(out, limit, func(c *model.CandidateProfile) PaginationCursor {
		return PaginationCursor{ID: c.ID, CreatedAt: c.UpdatedAt}
	})
	return out, next, nil
}

func scanCandidate(row pgx.Row) (*model.CandidateProfile, error) {
	var c model.CandidateProfile
	var skills []string
	if err := row.Scan(
		&c.ID, &c.CompanyID, &c.Email, &c.FullName, &c.Phone, &c.Location, &c.Headline, &c.Summary,
		&c.ResumeText, pq.Array(&skills), &c.YearsExperience, &c.LinkedInURL, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Skills = nonNil(skills)
	return &c, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func lowerAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
