package domain

import (
	"net"
	"time"
)

// Activity types recorded in the audit log
const (
	ActivityLogin          = "LOGIN"
	ActivityLogout         = "LOGOUT"
	ActivityProfileUpdate  = "PROFILE_UPDATE"
	ActivityPasswordChange = "PASSWORD_CHANGE"
	ActivityPasswordReset  = "PASSWORD_RESET"
	ActivityAccessApplied  = "ACCESS_APPLIED"
	ActivityAccessGranted  = "ACCESS_GRANTED"
	ActivityAccessRevoked  = "ACCESS_REVOKED"
)

// ActivityLogEntry is append-only audit data, surfaced read-only as the
// user's activity history.
type ActivityLogEntry struct {
	ID          int64          `json:"id"`
	UserID      int64          `json:"user_id"`
	Type        string         `json:"activity_type"`
	Description string         `json:"description"`
	IPAddress   net.IP         `json:"ip_address,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
