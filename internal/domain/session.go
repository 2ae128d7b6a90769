package domain

import (
	"net"
	"time"
)

type Session struct {
	ID           int64             `json:"id"`
	UserID       int64             `json:"user_id"`
	SessionKey   string            `json:"session_key"`
	IPAddress    net.IP            `json:"ip_address"`
	UserAgent    string            `json:"user_agent"`
	DeviceInfo   map[string]string `json:"device_info"`
	IsActive     bool              `json:"is_active"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
	LogoutTime   *time.Time        `json:"logout_time,omitempty"`
}

type StartSessionInput struct {
	UserID     int64
	IPAddress  net.IP
	UserAgent  string
	DeviceInfo map[string]string
}
