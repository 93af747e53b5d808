package service

import "errors"

// Service errors. Handlers map these to HTTP status codes.
var (
	// ErrInvalidInput is wrapped with a description of the offending field.
	ErrInvalidInput = errors.New("invalid input")

	ErrCompanyNotFound  = errors.New("company not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrMemberNotFound   = errors.New("member not found")
	ErrAlreadyMember    = errors.New("user is already a member")
	ErrLastOwner        = errors.New("company must keep at least one owner")
	ErrOwnerRequired    = errors.New("only owners can grant or revoke ownership")
	ErrSlugTaken        = errors.New("slug is already taken")
	ErrScopeNotAllowed  = errors.New("requested scopes exceed the member's role")
	ErrAPIKeyNotFound   = errors.New("API key not found")
	ErrInvalidInvite    = errors.New("invitation is invalid")
	ErrInviteExpired    = errors.New("invitation has expired")
	ErrInviteUsed       = errors.New("invitation was already used")
	ErrSeatLimitReached = errors.New("plan seat limit reached")

	ErrJobNotFound          = errors.New("job not found")
	ErrJobLimitReached      = errors.New("plan active job limit reached")
	ErrJobNotOpen           = errors.New("job is not accepting applications")
	ErrInvalidJobTransition = errors.New("invalid job status transition")

	ErrCandidateNotFound      = errors.New("candidate not found")
	ErrApplicationNotFound    = errors.New("application not found")
	ErrAlreadyApplied         = errors.New("candidate already applied to this job")
	ErrInvalidStageTransition = errors.New("invalid application stage transition")
	ErrStageConflict          = errors.New("application stage changed concurrently")

	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionInactive = errors.New("subscription does not allow this action")
	ErrFeatureNotAvailable  = errors.New("plan does not include this feature")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrPlanCodeExists       = errors.New("plan code already exists")
	ErrPlanUnavailable      = errors.New("plan is not available to this company")

	ErrTicketNotFound = errors.New("ticket not found")
	ErrTicketClosed   = errors.New("ticket is closed")

	ErrEventNotFound    = errors.New("calendar event not found")
	ErrTaskNotFound     = errors.New("task not found")
	ErrInvalidReference = errors.New("referenced record does not exist")
)
