// Package model defines domain entities for the application.
package model

import (
	"slices"
	"time"
)

// Role is a member's role within a company.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleRecruiter Role = "recruiter"
	RoleViewer    Role = "viewer"
)

// ValidRoles contains all valid role values.
var ValidRoles = []Role{RoleOwner, RoleAdmin, RoleRecruiter, RoleViewer}

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	return slices.Contains(ValidRoles, r)
}

// AllowedScopes returns the API key scopes a member with this role may hold.
func (r Role) AllowedScopes() []string {
	switch r {
	case RoleOwner, RoleAdmin:
		return []string{ScopeRead, ScopeWrite, ScopeWebhook, ScopeAdmin}
	case RoleRecruiter:
		return []string{ScopeRead, ScopeWrite}
	case RoleViewer:
		return []string{ScopeRead}
	default:
		return nil
	}
}

// PermitsScopes reports whether every requested scope is allowed for the role.
func (r Role) PermitsScopes(scopes []string) bool {
	allowed := r.AllowedScopes()
	for _, s := range scopes {
		if !slices.Contains(allowed, s) {
			return false
		}
	}
	return true
}

// Company is a tenant of the platform.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Website   string    `json:"website,omitempty"`
	Industry  string    `json:"industry,omitempty"`
	Size      string    `json:"size,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User represents a person who can belong to one or more companies.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership links a user to a company with a role.
type Membership struct {
	CompanyID string    `json:"company_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	// Populated on list queries.
	User *User `json:"user,omitempty"`
}

// ConsumedInvite records a redeemed invitation token.
type ConsumedInvite struct {
	ID         string
	CompanyID  string
	Email      string
	ConsumedAt time.Time
	ExpiresAt  time.Time
}
