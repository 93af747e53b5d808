package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hireloop/hireloop/internal/model"
)

// Company repository errors.
var (
	ErrCompanyNotFound = errors.New("company not found")
	ErrSlugExists      = errors.New("company slug already exists")
)

const companyColumns = `id, name, slug, website, industry, size, created_at, updated_at`

// CreateCompany inserts a new company.
func (r *Repository) CreateCompany(ctx context.Context, c *model.Company) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO companies (id, name, slug, website, industry, size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.Name, c.Slug, c.Website, c.Industry, c.Size, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugExists
		}
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

// GetCompanyByID retrieves a company by id.
func (r *Repository) GetCompanyByID(ctx context.Context, id string) (*model.Company, error) {
	return r.getCompany(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
}

// GetCompanyBySlug retrieves a company by its public slug.
func (r *Repository) GetCompanyBySlug(ctx context.Context, slug string) (*model.Company, error) {
	return r.getCompany(ctx, `SELECT `+companyColumns+` FROM companies WHERE slug = $1`, slug)
}

func (r *Repository) getCompany(ctx context.Context, query string, arg string) (*model.Company, error) {
	var c model.Company
	err := r.db(ctx).QueryRow(ctx, query, arg).Scan(
		&c.ID, &c.Name, &c.Slug, &c.Website, &c.Industry, &c.Size, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}

// UpdateCompany updates a company's profile fields. The slug is immutable.
func (r *Repository) UpdateCompany(ctx context.Context, c *model.Company) error {
	result, err := r.db(ctx).Exec(ctx, `
		UPDATE companies
		SET name = $2, website = $3, industry = $4, size = $5, updated_at = $6
		WHERE id = $1
	`, c.ID, c.Name, c.Website, c.Industry, c.Size, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update company: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCompanyNotFound
	}
	return nil
}

// SlugExists reports whether a company already uses slug.
func (r *Repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM companies WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return exists, nil
}
