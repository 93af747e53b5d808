package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/hireloop/hireloop/internal/model"
)

// Job repository errors.
var (
	ErrJobNotFound = errors.New("job not found")
	// ErrJobConstraint is returned when a row fails a table check, such as
	// an inverted salary range.
	ErrJobConstraint = errors.New("job violates a table constraint")
)

// JobFilter narrows a job listing.
type JobFilter struct {
	CompanyID string
	Status    model.JobStatus
	// IncludeArchived lists archived jobs when Status is empty.
	IncludeArchived bool
}

const jobColumns = `id, company_id, title, department, location, employment_type, remote, description,
	requirements, salary_min, salary_max, currency, status, published_at, closed_at, created_by,
	created_at, updated_at`

// CreateJob inserts a new job.
func (r *Repository) CreateJob(ctx context.Context, j *model.Job) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO jobs (id, company_id, title, department, location, employment_type, remote, description,
			requirements, salary_min, salary_max, currency, status, published_at, closed_at, created_by,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		j.ID, j.CompanyID, j.Title, j.Department, j.Location, j.EmploymentType, j.Remote, j.Description,
		pq.Array(nonNil(j.Requirements)), j.SalaryMin, j.SalaryMax, j.Currency, j.Status, j.PublishedAt, j.ClosedAt,
		j.CreatedBy, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isCheckViolation(err) {
			return ErrJobConstraint
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job scoped to a company.
func (r *Repository) GetJob(ctx context.Context, companyID, id string) (*model.Job, error) {
	job, err := scanJob(r.db(ctx).QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE company_id = $1 AND id = $2`, companyID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// UpdateJob writes every mutable field of a job.
func (r *Repository) UpdateJob(ctx context.Context, j *model.Job) error {
	result, err := r.db(ctx).Exec(ctx, `
		UPDATE jobs
		SET title = $3, department = $4, location = $5, employment_type = $6, remote = $7,
			description = $8, requirements = $9, salary_min = $10, salary_max = $11, currency = $12,
			status = $13, published_at = $14, closed_at = $15, updated_at = $16
		WHERE company_id = $1 AND id = $2
	`,
		j.CompanyID, j.ID, j.Title, j.Department, j.Location, j.EmploymentType, j.Remote,
		j.Description, pq.Array(nonNil(j.Requirements)), j.SalaryMin, j.SalaryMax, j.Currency,
		j.Status, j.PublishedAt, j.ClosedAt, j.UpdatedAt,
	)
	if err != nil {
		if isCheckViolation(err) {
			return ErrJobConstraint
		}
		return fmt.Errorf("failed to update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ListJobs returns a page of jobs, newest first.
func (r *Repository) ListJobs(ctx context.Context, filter JobFilter, cursor string, limit int) ([]*model.Job, string, error) {
	cur, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE company_id = $1`
	args := []any{filter.CompanyID}

	switch {
	case filter.Status != "":
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	case !filter.IncludeArchived:
		query += " AND status <> 'archived'"
	}
	if cur != nil {
		args = append(args, cur.CreatedAt, cur.ID)
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	jobs, err := r.queryJobs(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	jobs, next := page(jobs, limit, func(j *model.Job) PaginationCursor {
		return PaginationCursor{ID: j.ID, CreatedAt: j.CreatedAt}
	})
	return jobs, next, nil
}

// ListOpenJobs returns every open job of a company for the careers page.
func (r *Repository) ListOpenJobs(ctx context.Context, companyID string) ([]*model.Job, error) {
	return r.queryJobs(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE company_id = $1 AND status = 'open'
		ORDER BY published_at DESC NULLS LAST, id DESC
	`, companyID)
}

// CountActiveJobs returns the number of open jobs, which is what the plan
// limit counts.
func (r *Repository) CountActiveJobs(ctx context.Context, companyID string) (int, error) {
	var n int
	err := r.db(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE company_id = $1 AND status = 'open'`, companyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return n, nil
}

func (r *Repository) queryJobs(ctx context.Context, query string, args ...any) ([]*model.Job, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var requirements []string
	if err := row.Scan(
		&j.ID, &j.CompanyID, &j.Title, &j.Department, &j.Location, &j.EmploymentType, &j.Remote,
		&j.Description, pq.Array(&requirements), &j.SalaryMin, &j.SalaryMax, &j.Currency, &j.Status,
		&j.PublishedAt, &j.ClosedAt, &j.CreatedBy, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	j.Requirements = nonNil(requirements)
	return &j, nil
}

// nonNil keeps NOT NULL array columns and JSON output free of nulls.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
