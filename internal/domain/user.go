package domain

import "time"

// Role is the application role carried by the identity provider token.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Requester is the authenticated caller of an operation, as asserted by the identity provider.
// swagger:model Requester
type Requester struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role"`
}

// IsAdmin reports whether the requester holds the administrator role.
func (r Requester) IsAdmin() bool {
	return r.Role == RoleAdmin
}

// ParseRole maps a token claim to a Role. Unknown values fall back to RoleUser.
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// TokenIssuer issues bearer tokens for a requester.
type TokenIssuer interface {
	Issue(requester Requester, expiry time.Duration) (string, error)
}

// TokenVerifier verifies a bearer token and returns the requester it was issued to.
type TokenVerifier interface {
	Verify(token string) (*Requester, error)
}
