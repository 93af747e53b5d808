package model

import "time"

// CandidateProfile is a person who applied to one of a company's jobs.
// Profiles are unique per (company, email).
type CandidateProfile struct {
	ID              string    `json:"id"`
	CompanyID       string    `json:"company_id"`
	Email           string    `json:"email"`
	FullName        string    `json:"full_name"`
	Phone           string    `json:"phone,omitempty"`
	Location        string    `json:"location,omitempty"`
	Headline        string    `json:"headline,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	ResumeText      string    `json:"resume_text,omitempty"`
	Skills          []string  `json:"skills"`
	YearsExperience int       `json:"years_experience"`
	LinkedInURL     string    `json:"linkedin_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TalentQuery filters candidate profiles in talent search.
type TalentQuery struct {
	Text     string
	Skills   []string
	Location string
	MinYears int
}
