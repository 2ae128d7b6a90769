package domain

import (
	"net"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Valid user roles
const (
	RoleStudent    = "STUDENT"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER_ADMIN"
)

var validRoles = map[string]bool{
	RoleStudent:    true,
	RoleAdmin:      true,
	RoleSuperAdmin: true,
}

func IsValidRole(role string) bool {
	return validRoles[role]
}

// crnPattern is the institutional registration number: ICAP-CA-YYYY-####
var crnPattern = regexp.MustCompile(`^ICAP-CA-\d{4}-\d{4}$`)

func IsValidCRN(crn string) bool {
	return crnPattern.MatchString(crn)
}

type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	CRN          string     `json:"crn"`
	StudentID    string     `json:"student_id"`
	Phone        string     `json:"phone"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"is_active"`
	IsVerified   bool       `json:"is_verified"`
	IsApproved   bool       `json:"is_approved"`
	ApprovalDate *time.Time `json:"approval_date,omitempty"`
	ApprovedBy   *int64     `json:"approved_by,omitempty"`
	LoginCount   int        `json:"login_count"`
	LastLoginIP  *net.IP    `json:"last_login_ip,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) IsStudent() bool    { return u.Role == RoleStudent }
func (u *User) IsAdmin() bool      { return u.Role == RoleAdmin || u.Role == RoleSuperAdmin }
func (u *User) IsSuperAdmin() bool { return u.Role == RoleSuperAdmin }

func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName(),
		CRN:        u.CRN,
		StudentID:  u.StudentID,
		Role:       u.Role,
		IsVerified: u.IsVerified,
		IsApproved: u.IsApproved,
	}
}

type UserInfo struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	CRN        string `json:"crn"`
	StudentID  string `json:"student_id"`
	Role       string `json:"role"`
	IsVerified bool   `json:"is_verified"`
	IsApproved bool   `json:"is_approved"`
}

type RegisterRequest struct {
	UserID          int64  `json:"user_id,omitempty"` // set when completing an OTP placeholder
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	CRN             string `json:"crn"`
	Phone           string `json:"phone"`
}

func (r *RegisterRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = NormalizeEmail(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.CRN = strings.ToUpper(strings.TrimSpace(r.CRN))
	r.Phone = strings.TrimSpace(r.Phone)
}

func (r *RegisterRequest) Validate() error {
	if !IsValidEmail(r.Email) {
		return ErrInvalidEmail
	}
	if r.Password != r.PasswordConfirm {
		return ErrPasswordMismatch
	}
	if err := ValidatePassword(r.Password); err != nil {
		return err
	}
	if !IsValidCRN(r.CRN) {
		return ErrInvalidCRN
	}
	return nil
}

type UpdateProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

func (r *UpdateProfileRequest) Normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Phone = strings.TrimSpace(r.Phone)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	SessionID    int64     `json:"session_id"`
	User         *UserInfo `json:"user"`
}

// ValidatePassword enforces the platform password policy: at least 8
// characters with a letter and a digit.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordPolicy
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrPasswordPolicy
	}
	return nil
}

// NormalizeEmail lowercases and trims email addresses
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail performs basic shape validation
func IsValidEmail(email string) bool {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return false
	}

	parts := strings.Split(normalized, "@")
	if len(parts) != 2 {
		return false
	}

	local, dom := parts[0], parts[1]
	return len(local) > 0 && len(dom) > 2 && strings.Contains(dom, ".")
}
