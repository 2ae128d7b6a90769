package domain

import "time"

// Library access types
const (
	AccessStandard  = "STANDARD"
	AccessExtended  = "EXTENDED"
	AccessTemporary = "TEMPORARY"
)

type LibraryAccessGrant struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	LibraryID  int64      `json:"library_id"`
	AccessType string     `json:"access_type"`
	IsActive   bool       `json:"is_active"`
	GrantedBy  *int64     `json:"granted_by,omitempty"`
	GrantedAt  *time.Time `json:"granted_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ResolveApproval is the single approval rule: a student is approved exactly
// while at least one active grant exists; admins are approved manually and
// never auto-revoked. Returns the new state and whether it changed.
func ResolveApproval(role string, hasActiveGrant, approved bool) (bool, bool) {
	if hasActiveGrant && !approved {
		return true, true
	}
	if !hasActiveGrant && approved && role == RoleStudent {
		return false, true
	}
	return approved, false
}
