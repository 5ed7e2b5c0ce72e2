package models

import "time"

type AccountKind string

const (
	KindStaff  AccountKind = "staff"
	KindClient AccountKind = "client"
)

// Roles carried in tokens.
const (
	RoleAdmin     = "admin"
	RoleLawyer    = "lawyer"
	RoleAssistant = "assistant"
	RoleClient    = "client"
)

type AccountStatus string

const (
	StatusActive   AccountStatus = "active"
	StatusInactive AccountStatus = "inactive"
	StatusBlocked  AccountStatus = "blocked"
)

// Account is a staff user or an external client. Clients carry a document id
// (CPF/CNPJ digits) and the one-time code state; staff carry a password digest.
type Account struct {
	Bucket         int           `json:"-"`
	ID             string        `json:"id"`
	Kind           AccountKind   `json:"kind"`
	Email          string        `json:"email"`
	DocumentID     string        `json:"document_id,omitempty"`
	DisplayName    string        `json:"display_name"`
	PasswordDigest string        `json:"-"`
	Role           string        `json:"role"`
	Status         AccountStatus `json:"status"`
	OTPCode        string        `json:"-"`
	OTPExpiresAt   *time.Time    `json:"-"`
	OTPAttempts    int           `json:"-"`
	LastAccessAt   *time.Time    `json:"last_access_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

func (a *Account) IsBlocked() bool {
	return a.Status == StatusBlocked
}

// Identity is the public view of an authenticated account.
func (a *Account) Identity() Identity {
	return Identity{ID: a.ID, Email: a.Email, Name: a.DisplayName, Role: a.Role}
}

type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// AccountUpdate is a partial write; nil fields are left unchanged.
type AccountUpdate struct {
	PasswordDigest *string
	Status         *AccountStatus
	OTPCode        *string
	OTPExpiresAt   *time.Time
	ClearOTPExpiry bool
	OTPAttempts    *int
	LastAccessAt   *time.Time
}

// Apply copies the set fields of u onto a.
func (u AccountUpdate) Apply(a *Account) {
	if u.PasswordDigest != nil {
		a.PasswordDigest = *u.PasswordDigest
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.OTPCode != nil {
		a.OTPCode = *u.OTPCode
	}
	if u.ClearOTPExpiry {
		a.OTPExpiresAt = nil
	} else if u.OTPExpiresAt != nil {
		t := *u.OTPExpiresAt
		a.OTPExpiresAt = &t
	}
	if u.OTPAttempts != nil {
		a.OTPAttempts = *u.OTPAttempts
	}
	if u.LastAccessAt != nil {
		t := *u.LastAccessAt
		a.LastAccessAt = &t
	}
}

// IsEmpty reports whether u changes nothing.
func (u AccountUpdate) IsEmpty() bool {
	return u.PasswordDigest == nil && u.Status == nil && u.OTPCode == nil &&
		u.OTPExpiresAt == nil && !u.ClearOTPExpiry && u.OTPAttempts == nil && u.LastAccessAt == nil
}
