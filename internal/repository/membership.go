package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hireloop/hireloop/internal/model"
)

// Membership repository errors.
var (
	ErrMembershipNotFound = errors.New("membership not found")
	ErrAlreadyMember      = errors.New("user is already a member")
)

// CreateMembership adds a user to a company.
func (r *Repository) CreateMembership(ctx context.Context, m *model.Membership) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO memberships (company_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
	`, m.CompanyID, m.UserID, m.Role, m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// GetMembership returns the membership of userID in companyID.
func (r *Repository) GetMembership(ctx context.Context, companyID, userID string) (*model.Membership, error) {
	var m model.Membership
	err := r.db(ctx).QueryRow(ctx, `
		SELECT company_id, user_id, role, created_at
		FROM memberships
		WHERE company_id = $1 AND user_id = $2
	`, companyID, userID).Scan(&m.CompanyID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

// ListMembers returns every member of a company with their user profile.
func (r *Repository) ListMembers(ctx context.Context, companyID string) ([]*model.Membership, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT m.company_id, m.user_id, m.role, m.created_at,
		       u.id, u.email, u.name, u.title, u.created_at, u.updated_at
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.company_id = $1
		ORDER BY m.created_at, m.user_id
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*model.Membership
	for rows.Next() {
		var m model.Membership
		var u model.User
		if err := rows.Scan(
			&m.CompanyID, &m.UserID, &m.Role, &m.CreatedAt,
			&u.ID, &u.Email, &u.Name, &u.Title, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.User = &u
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

// UpdateMemberRole changes a member's role.
func (r *Repository) UpdateMemberRole(ctx context.Context, companyID, userID string, role model.Role) error {
	result, err := r.db(ctx).Exec(ctx, `
		UPDATE memberships SET role = $3 WHERE company_id = $1 AND user_id = $2
	`, companyID, userID, role)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// DeleteMembership removes a user from a company.
func (r *Repository) DeleteMembership(ctx context.Context, companyID, userID string) error {
	result, err := r.db(ctx).Exec(ctx, `
		DELETE FROM memberships WHERE company_id = $1 AND user_id = $2
	`, companyID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// CountMembers returns the number of seats in use.
func (r *Repository) CountMembers(ctx context.Context, companyID string) (int, error) {
	var n int
	err := r.db(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM memberships WHERE company_id = $1`, companyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return n, nil
}

// CountOwners returns the number of owners of a company. Inside a
// transaction the owner rows are locked so concurrent demotions serialize.
func (r *Repository) CountOwners(ctx context.Context, companyID string) (int, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT user_id FROM memberships
		WHERE company_id = $1 AND role = 'owner'
		FOR UPDATE
	`, companyID)
	if err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return n, nil
}

// ConsumeInvite marks an invitation token as redeemed. It returns false when
// the token was redeemed before.
func (r *Repository) ConsumeInvite(ctx context.Context, inv *model.ConsumedInvite) (bool, error) {
	result, err := r.db(ctx).Exec(ctx, `
		INSERT INTO consumed_invites (id, company_id, email, consumed_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, inv.ID, inv.CompanyID, inv.Email, inv.ConsumedAt, inv.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to consume invite: %w", err)
	}
	return result.RowsAffected() == 1, nil
}
