package dto

import "github.com/hireloop/hireloop/internal/model"

// JobRequest creates or updates a job. Omitted fields are left unchanged
// on update.
type JobRequest struct {
	Title          *string  `json:"title,omitempty" validate:"omitempty,max=200"`
	Department     *string  `json:"department,omitempty" validate:"omitempty,max=100"`
	Location       *string  `json:"location,omitempty" validate:"omitempty,max=200"`
	EmploymentType *string  `json:"employment_type,omitempty" validate:"omitempty,oneof=full_time part_time contract internship"`
	Remote         *bool    `json:"remote,omitempty"`
	Description    *string  `json:"description,omitempty" validate:"omitempty,max=20000"`
	Requirements   []string `json:"requirements,omitempty" validate:"max=50,dive,max=500"`
	SalaryMin      *int     `json:"salary_min,omitempty" validate:"omitempty,gte=0"`
	SalaryMax      *int     `json:"salary_max,omitempty" validate:"omitempty,gte=0"`
	Currency       *string  `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// CareersResponse lists a company's open jobs.
type CareersResponse struct {
	Company string            `json:"company"`
	Jobs    []model.PublicJob `json:"jobs"`
}

// ApplyRequest is a candidate's application from the careers page.
type ApplyRequest struct {
	Email           string   `json:"email" validate:"required,email"`
	FullName        string   `json:"full_name" validate:"required,max=200"`
	Phone           string   `json:"phone,omitempty" validate:"max=50"`
	Location        string   `json:"location,omitempty" validate:"max=200"`
	Headline        string   `json:"headline,omitempty" validate:"max=300"`
	Summary         string   `json:"summary,omitempty" validate:"max=5000"`
	ResumeText      string   `json:"resume_text,omitempty" validate:"max=100000"`
	Skills          []string `json:"skills,omitempty" validate:"max=100,dive,max=100"`
	YearsExperience int      `json:"years_experience,omitempty" validate:"gte=0,lte=80"`
	LinkedInURL     string   `json:"linkedin_url,omitempty" validate:"omitempty,url,max=2048"`
	CoverLetter     string   `json:"cover_letter,omitempty" validate:"max=20000"`
	Source          string   `json:"source,omitempty" validate:"max=100"`
}

// ApplyResponse acknowledges an application without exposing scoring.
type ApplyResponse struct {
	ApplicationID string                  `json:"application_id"`
	Status        model.ApplicationStatus `json:"status"`
}

// MoveStageRequest moves an application through the pipeline.
type MoveStageRequest struct {
	Status model.ApplicationStatus `json:"status" validate:"required"`
	Reason string                  `json:"reason,omitempty" validate:"max=2000"`
}

// NoteRequest adds a recruiter note.
type NoteRequest struct {
	Body string `json:"body" validate:"required,max=10000"`
}

// UpdateCandidateRequest edits a candidate profile.
type UpdateCandidateRequest struct {
	FullName        *string  `json:"full_name,omitempty" validate:"omitempty,max=200"`
	Phone           *string  `json:"phone,omitempty" validate:"omitempty,max=50"`
	Location        *string  `json:"location,omitempty" validate:"omitempty,max=200"`
	Headline        *string  `json:"headline,omitempty" validate:"omitempty,max=300"`
	Summary         *string  `json:"summary,omitempty" validate:"omitempty,max=5000"`
	ResumeText      *string  `json:"resume_text,omitempty" validate:"omitempty,max=100000"`
	Skills          []string `json:"skills,omitempty" validate:"max=100,dive,max=100"`
	YearsExperience *int     `json:"years_experience,omitempty" validate:"omitempty,gte=0,lte=80"`
	LinkedInURL     *string  `json:"linkedin_url,omitempty" validate:"omitempty,max=2048"`
}

// TalentSearchRequest holds the talent pool query parameters.
type TalentSearchRequest struct {
	Query    string   `json:"query,omitempty" validate:"max=200"`
	Skills   []string `json:"skills,omitempty" validate:"max=20,dive,max=100"`
	Location string   `json:"location,omitempty" validate:"max=200"`
	MinYears int      `json:"min_years,omitempty" validate:"gte=0,lte=80"`
}
