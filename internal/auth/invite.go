package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/hireloop/hireloop/internal/model"
)

// InviteTTL is how long an invitation token stays valid.
const InviteTTL = 7 * 24 * time.Hour

const inviteIssuer = "hireloop"

var (
	// ErrInvalidInvite covers bad signatures, malformed tokens and bad claims.
	ErrInvalidInvite = errors.New("invalid invitation")
	// ErrInviteExpired indicates the invitation is past its expiry.
	ErrInviteExpired = errors.New("invitation expired")
)

// InviteClaims are the claims carried by an invitation token. The
// registered jti identifies the token so it can be redeemed once.
type InviteClaims struct {
	CompanyID string     `json:"company_id"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	jwt.RegisteredClaims
}

// InviteSigner issues and verifies HS256 invitation tokens.
type InviteSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewInviteSigner creates a signer with the given HMAC key.
func NewInviteSigner(key string) *InviteSigner {
	return &InviteSigner{key: []byte(key), ttl: InviteTTL, now: time.Now}
}

// Issue returns a signed token inviting email to companyID with role.
func (s *InviteSigner) Issue(companyID, email string, role model.Role) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := InviteClaims{
		CompanyID: companyID,
		Email:     email,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Issuer:    inviteIssuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign invite: %w", err)
	}
	return token, exp, nil
}

// Verify parses token and returns its claims.
func (s *InviteSigner) Verify(token string) (*InviteClaims, error) {
	var claims InviteClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(inviteIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrInviteExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvite, err)
	}

	if claims.ID == "" || claims.CompanyID == "" || claims.Email == "" || !claims.Role.IsValid() {
		return nil, fmt.Errorf("%w: missing claims", ErrInvalidInvite)
	}
	if claims.Role == model.RoleOwner {
		return nil, fmt.Errorf("%w: owner role cannot be invited", ErrInvalidInvite)
	}
	return &claims, nil
}
