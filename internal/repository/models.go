package repository

import (
	"strings"
	"time"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleResident Role = "resident"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleResident, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// AccountStatus gates login capability.
//
//	pending -> active          identity-linked or admin-approved
//	active  -> deactivated     admin action
//	pending -> deactivated     admin rejection
type AccountStatus string

const (
	StatusPending     AccountStatus = "pending"
	StatusActive      AccountStatus = "active"
	StatusDeactivated AccountStatus = "deactivated"
)

// Valid reports whether s is a known status.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusDeactivated:
		return true
	}
	return false
}

// DocumentStatus is the verification state of a resident's uploaded documents.
type DocumentStatus string

const (
	DocumentsPending  DocumentStatus = "pending"
	DocumentsApproved DocumentStatus = "approved"
	DocumentsRejected DocumentStatus = "rejected"
)

// Purpose tags what a one-time code may be used for.
type Purpose string

const (
	PurposeLogin         Purpose = "login"
	PurposePasswordReset Purpose = "password_reset"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeLogin || p == PurposePasswordReset
}

// Audit actions.
const (
	ActionAccountCreated     = "account_created"
	ActionAccountActivated   = "account_activated"
	ActionAccountDeactivated = "account_deactivated"
	ActionResidentLinked     = "resident_linked"
	ActionResidentRegistered = "resident_registered"
	ActionDocumentsApproved  = "documents_approved"
	ActionLogin              = "login"
	ActionLogout             = "logout"
	ActionPasswordChanged    = "password_changed"
	ActionPasswordReset      = "password_reset"
)

// Account is a login credential, optionally linked to a Resident.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	Role         Role
	Status       AccountStatus
	ResidentID   *string
	LastLoginAt  *time.Time
	CreatedBy    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Resident is a physical-person record in the barangay registry.
type Resident struct {
	ID             string
	FirstName      string
	MiddleName     *string
	LastName       string
	Suffix         *string
	BirthDate      *time.Time
	Address        string
	ContactNumber  *string
	Email          *string
	DocumentStatus DocumentStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FullName joins first, middle and last name with single spaces.
func (r *Resident) FullName() string {
	parts := []string{r.FirstName}
	if r.MiddleName != nil && strings.TrimSpace(*r.MiddleName) != "" {
		parts = append(parts, *r.MiddleName)
	}
	parts = append(parts, r.LastName)
	return NormalizeName(strings.Join(parts, " "))
}

// NormalizeName collapses whitespace and trims the ends.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// PendingAccount is a pending account joined with its linked resident.
type PendingAccount struct {
	Account  *Account
	Resident *Resident
}

// OneTimeCode is a stored verification code. Only a digest of the code is kept.
// Seq is assigned by the store in issue order.
type OneTimeCode struct {
	ID        string
	Seq       int64
	AccountID string
	CodeHash  string
	Purpose   Purpose
	CreatedAt time.Time
	ExpiresAt time.Time
	IsUsed    bool
	UsedAt    *time.Time
}

// AuditEntry is an immutable record of an action.
type AuditEntry struct {
	ID        string
	ActorID   *string
	Action    string
	Detail    string
	CreatedAt time.Time
}

// Session represents an authenticated session created after code verification
type Session struct {
	ID                    string
	AccountID             string
	DeviceName            *string
	IPAddress             *string
	CreatedAt             time.Time
	ExpiresAt             time.Time
	LastActivityAt        time.Time
	IsActive              bool
	RefreshTokenHash      *string
	RefreshTokenExpiresAt *time.Time
}
