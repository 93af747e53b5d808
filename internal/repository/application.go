package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/hireloop/hireloop/internal/model"
)

// Application repository errors.
var (
	ErrApplicationNotFound = errors.New("application not found")
	ErrAlreadyApplied      = errors.New("candidate already applied to this job")
	// ErrStatusConflict means the row changed status since it was read.
	ErrStatusConflict = errors.New("application status changed concurrently")
)

// ScoringLease is the shortest time a claimed application is hidden from
// other scoring workers.
const ScoringLease = 5 * time.Minute

// ApplicationSort selects the order of a job's applicant list.
type ApplicationSort string

const (
	SortByScore  ApplicationSort = "score"
	SortByRecent ApplicationSort = "recent"
)

const applicationColumns = `a.id, a.company_id, a.job_id, a.candidate_id, a.status, a.cover_letter, a.source,
	a.score, a.score_summary, a.score_details, a.score_status, a.scored_at, a.rejection_reason,
	a.created_at, a.updated_at`

const applicationWithCandidate = applicationColumns + `,
	c.id, c.company_id, c.email, c.full_name, c.phone, c.location, c.headline, c.summary,
	c.resume_text, c.skills, c.years_experience, c.linkedin_url, c.created_at, c.updated_at`

// CreateApplication inserts an application.
func (r *Repository) CreateApplication(ctx context.Context, a *model.Application) error {
	details, err := marshalDetails(a.ScoreDetails)
	if err != nil {
		return err
	}
	_, err = r.db(ctx).Exec(ctx, `
		INSERT INTO applications (id, company_id, job_id, candidate_id, status, cover_letter, source,
			score, score_summary, score_details, score_status, scored_at, rejection_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		a.ID, a.CompanyID, a.JobID, a.CandidateID, a.Status, a.CoverLetter, a.Source,
		a.Score, a.ScoreSummary, details, a.ScoreStatus, a.ScoredAt, a.RejectionReason, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyApplied
		}
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// GetApplication retrieves an application with its candidate.
func (r *Repository) GetApplication(ctx context.Context, companyID, id string) (*model.Application, error) {
	a, err := scanApplicationWithCandidate(r.db(ctx).QueryRow(ctx, `
		SELECT `+applicationWithCandidate+`
		FROM applications a
		JOIN candidate_profiles c ON c.id = a.candidate_id
		WHERE a.company_id = $1 AND a.id = $2
	`, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return a, nil
}

// ListApplicationsByJob returns a page of a job's applicants. SortByScore
// puts the highest score first and unscored applicants last.
func (r *Repository) ListApplicationsByJob(ctx context.Context, companyID, jobID string, sort ApplicationSort, cursor string, limit int) ([]*model.Application, string, error) {
	cur, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	query := `SELECT ` + applicationWithCandidate + `
		FROM applications a
		JOIN candidate_profiles c ON c.id = a.candidate_id
		WHERE a.company_id = $1 AND a.job_id = $2`
	args := []any{companyID, jobID}

	if sort == SortByScore {
		if cur != nil {
			if cur.Rank == nil {
				return nil, "", ErrInvalidCursor
			}
			args = append(args, *cur.Rank, cur.CreatedAt, cur.ID)
			n := len(args)
			query += fmt.Sprintf(" AND (COALESCE(a.score, -1), a.created_at, a.id) < ($%d, $%d, $%d)", n-2, n-1, n)
		}
		query += " ORDER BY COALESCE(a.score, -1) DESC, a.created_at DESC, a.id DESC"
	} else {
		if cur != nil {
			args = append(args, cur.CreatedAt, cur.ID)
			query += fmt.Sprintf(" AND (a.created_at, a.id) < ($%d, $%d)", len(args)-1, len(args))
		}
		query += " ORDER BY a.created_at DESC, a.id DESC"
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	apps, err := r.queryApplications(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	apps, next := page(apps, limit, func(a *model.Application) PaginationCursor {
		c := PaginationCursor{ID: a.ID, CreatedAt: a.CreatedAt}
		if sort == SortByScore {
			rank := -1
			if a.Score != nil {
				rank = *a.Score
			}
			c.Rank = &rank
		}
		return c
	})
	return apps, next, nil
}

// ListApplicationsByCandidate returns every application of a candidate.
func (r *Repository) ListApplicationsByCandidate(ctx context.Context, companyID, candidateID string) ([]*model.Application, error) {
	return r.queryApplications(ctx, `
		SELECT `+applicationWithCandidate+`
		FROM applications a
		JOIN candidate_profiles c ON c.id = a.candidate_id
		WHERE a.company_id = $1 AND a.candidate_id = $2
		ORDER BY a.created_at DESC, a.id DESC
	`, companyID, candidateID)
}

// UpdateApplicationStatus moves an application from one stage to another.
// It returns ErrStatusConflict when the stored status is no longer from.
func (r *Repository) UpdateApplicationStatus(ctx context.Context, a *model.Application, from model.ApplicationStatus) error {
	result, err := r.db(ctx).Exec(ctx, `
		UPDATE applications
		SET status = $4, rejection_reason = $5, updated_at = $6
		WHERE company_id = $1 AND id = $2 AND status = $3
	`, a.CompanyID, a.ID, from, a.Status, a.RejectionReason, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update application status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// QueueScoring marks an application pending so the scoring worker picks it up.
func (r *Repository) QueueScoring(ctx context.Context, companyID, id string) error {
	result, err := r.db(ctx).Exec(ctx, `
		UPDATE applications
		SET score_status = 'pending', score_lease_until = NULL, updated_at = $3
		WHERE company_id = $1 AND id = $2
	`, companyID, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to queue scoring: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrApplicationNotFound
	}
	return nil
}

// ClaimPendingScoring leases up to limit pending applications and returns
// them with their job and candidate. Claimed rows stay pending; a worker
// that dies leaves them to be reclaimed once the lease, at least
// ScoringLease, runs out.
func (r *Repository) ClaimPendingScoring(ctx context.Context, limit int, lease time.Duration) ([]*model.ScoringJob, error) {
	lease = max(lease, ScoringLease)
	now := time.Now().UTC()
	rows, err := r.db(ctx).Query(ctx, `
		WITH claimed AS (
			UPDATE applications
			SET score_lease_until = $2
			WHERE id IN (
				SELECT id FROM applications
				WHERE score_status = 'pending'
				  AND (score_lease_until IS NULL OR score_lease_until < $1)
				ORDER BY created_at
				LIMIT $3
				FOR UPDATE SKIP LOCKED
			)
			RETURNING *
		)
		SELECT `+applicationWithCandidate+`,
			j.id, j.company_id, j.title, j.department, j.location, j.employment_type, j.remote, j.description,
			j.requirements, j.salary_min, j.salary_max, j.currency, j.status, j.published_at, j.closed_at,
			j.created_by, j.created_at, j.updated_at
		FROM claimed a
		JOIN candidate_profiles c ON c.id = a.candidate_id
		JOIN jobs j ON j.id = a.job_id
		ORDER BY a.created_at
	`, now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending scoring: %w", err)
	}
	defer rows.Close()

	var out []*model.ScoringJob
	for rows.Next() {
		var job model.Job
		var requirements []string
		var dest scanDest
		targets := append(dest.application(), dest.candidate()...)
		targets = append(targets,
			&job.ID, &job.CompanyID, &job.Title, &job.Department, &job.Location, &job.EmploymentType,
			&job.Remote, &job.Description, pq.Array(&requirements), &job.SalaryMin, &job.SalaryMax,
			&job.Currency, &job.Status, &job.PublishedAt, &job.ClosedAt, &job.CreatedBy, &job.CreatedAt,
			&job.UpdatedAt,
		)
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed to scan scoring job: %w", err)
		}
		app, err := dest.build()
		if err != nil {
			return nil, err
		}
		job.Requirements = nonNil(requirements)
		out = append(out, &model.ScoringJob{Application: app, Job: &job, Candidate: app.Candidate})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scoring jobs: %w", err)
	}
	return out, nil
}

// SaveScore stores a scoring result and releases the lease.
func (r *Repository) SaveScore(ctx context.Context, a *model.Application) error {
	details, err := marshalDetails(a.ScoreDetails)
	if err != nil {
		return err
	}
	result, err := r.db(ctx).Exec(ctx, `
		UPDATE applications
		SET score = $2, score_summary = $3, score_details = $4, score_status = $5, scored_at = $6,
			score_lease_until = NULL, updated_at = $7
		WHERE id = $1
	`, a.ID, a.Score, a.ScoreSummary, details, a.ScoreStatus, a.ScoredAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrApplicationNotFound
	}
	return nil
}

// SetScoreStatus records a scoring outcome without a score.
func (r *Repository) SetScoreStatus(ctx context.Context, id string, status model.ScoreStatus) error {
	result, err := r.db(ctx).Exec(ctx, `
		UPDATE applications
		SET score_status = $2, score_lease_until = NULL, updated_at = $3
		WHERE id = $1
	`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set score status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrApplicationNotFound
	}
	return nil
}

// CreateApplicationNote adds a recruiter note.
func (r *Repository) CreateApplicationNote(ctx context.Context, n *model.ApplicationNote) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO application_notes (id, application_id, author_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, n.ID, n.ApplicationID, n.AuthorID, n.Body, n.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrApplicationNotFound
		}
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

// ListApplicationNotes returns an application's notes, oldest first.
func (r *Repository) ListApplicationNotes(ctx context.Context, applicationID string) ([]*model.ApplicationNote, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT id, application_id, author_id, body, created_at
		FROM application_notes
		WHERE application_id = $1
		ORDER BY created_at, id
	`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*model.ApplicationNote
	for rows.Next() {
		var n model.ApplicationNote
		if err := rows.Scan(&n.ID, &n.ApplicationID, &n.AuthorID, &n.Body, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}
	return notes, nil
}

func (r *Repository) queryApplications(ctx context.Context, query string, args ...any) ([]*model.Application, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []*model.Application
	for rows.Next() {
		a, err := scanApplicationWithCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating applications: %w", err)
	}
	return apps, nil
}

// scanDest collects the scan targets of an application joined with its
// candidate.
type scanDest struct {
	app     model.Application
	cand    model.CandidateProfile
	details []byte
	skills  []string
}

func (d *scanDest) application() []any {
	a := &d.app
	return []any{
		&a.ID, &a.CompanyID, &a.JobID, &a.CandidateID, &a.Status, &a.CoverLetter, &a.Source,
		&a.Score, &a.ScoreSummary, &d.details, &a.ScoreStatus, &a.ScoredAt, &a.RejectionReason,
		&a.CreatedAt, &a.UpdatedAt,
	}
}

func (d *scanDest) candidate() []any {
	c := &d.cand
	return []any{
		&c.ID, &c.CompanyID, &c.Email, &c.FullName, &c.Phone, &c.Location, &c.Headline, &c.Summary,
		&c.ResumeText, pq.Array(&d.skills), &c.YearsExperience, &c.LinkedInURL, &c.CreatedAt, &c.UpdatedAt,
	}
}

func (d *scanDest) build() (*model.Application, error) {
	if len(d.details) > 0 {
		var details model.ScoreDetails
		if err := json.Unmarshal(d.details, &details); err != nil {
			return nil, fmt.Errorf("decode score details: %w", err)
		}
		d.app.ScoreDetails = &details
	}
	d.cand.Skills = nonNil(d.skills)
	app := d.app
	cand := d.cand
	app.Candidate = &cand
	return &app, nil
}

func scanApplicationWithCandidate(row pgx.Row) (*model.Application, error) {
	var d scanDest
	if err := row.Scan(append(d.application(), d.candidate()...)...); err != nil {
		return nil, err
	}
	return d.build()
}

func marshalDetails(d *model.ScoreDetails) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode score details: %w", err)
	}
	return data, nil
}
