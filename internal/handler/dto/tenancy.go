package dto

import "github.com/hireloop/hireloop/internal/model"

// SignupRequest creates a company and its owner.
type SignupRequest struct {
	CompanyName string `json:"company_name" validate:"required,max=200"`
	Slug        string `json:"slug,omitempty" validate:"omitempty,max=63"`
	OwnerEmail  string `json:"owner_email" validate:"required,email"`
	OwnerName   string `json:"owner_name,omitempty" validate:"max=200"`
}

// SignupResponse is returned once; it carries the owner key plaintext.
type SignupResponse struct {
	Company      *model.Company             `json:"company"`
	Owner        *model.User                `json:"owner"`
	Subscription *model.Subscription        `json:"subscription"`
	APIKey       model.APIKeyCreateResponse `json:"api_key"`
}

// UpdateCompanyRequest changes the company profile.
type UpdateCompanyRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Website  *string `json:"website,omitempty" validate:"omitempty,max=2048"`
	Industry *string `json:"industry,omitempty" validate:"omitempty,max=100"`
	Size     *string `json:"size,omitempty" validate:"omitempty,max=50"`
}

// UpdateUserRequest changes the caller's profile.
type UpdateUserRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Title *string `json:"title,omitempty" validate:"omitempty,max=200"`
}

// InviteRequest invites someone to the team.
type InviteRequest struct {
	Email string     `json:"email" validate:"required,email"`
	Role  model.Role `json:"role" validate:"required,oneof=admin recruiter viewer"`
}

// AcceptInviteRequest redeems an invitation.
type AcceptInviteRequest struct {
	Token string `json:"token" validate:"required"`
	Name  string `json:"name,omitempty" validate:"max=200"`
}

// AcceptInviteResponse carries the new member's first key.
type AcceptInviteResponse struct {
	Company    *model.Company             `json:"company"`
	User       *model.User                `json:"user"`
	Membership *model.Membership          `json:"membership"`
	APIKey     model.APIKeyCreateResponse `json:"api_key"`
}

// ChangeRoleRequest sets a member's role.
type ChangeRoleRequest struct {
	Role model.Role `json:"role" validate:"required,role"`
}

// CreateAPIKeyRequest issues a key for the caller.
type CreateAPIKeyRequest struct {
	Name   string   `json:"name,omitempty" validate:"max=100"`
	Scopes []string `json:"scopes,omitempty" validate:"dive,scope"`
}

// CreatePlatformKeyRequest mints a staff key.
type CreatePlatformKeyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name,omitempty"`
}
