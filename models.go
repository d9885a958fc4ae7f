package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MFAChannel identifies an out-of-band delivery channel for one-time codes.
type MFAChannel string

const (
	MFAChannelEmail MFAChannel = "email"
	MFAChannelPhone MFAChannel = "phone"
)

// IsValid reports whether the channel is one we can deliver to.
func (c MFAChannel) IsValid() bool {
	switch c {
	case MFAChannelEmail, MFAChannelPhone:
		return true
	default:
		return false
	}
}

// Activity is a transient marker describing the last significant mutation
// applied to an account. It is never persisted; event handlers use it to
// decide which notification a committed change should produce.
type Activity string

const (
	ActivityCreated                Activity = "account.created"
	ActivityActivated              Activity = "account.activated"
	ActivityReinviteRequested      Activity = "account.reinvite_requested"
	ActivityPasswordResetRequested Activity = "account.password_reset_requested"
	ActivityPasswordReset          Activity = "account.password_reset"
	ActivityMFACodeToEmail         Activity = "account.mfa_code_to_email"
	ActivityMFACodeToPhone         Activity = "account.mfa_code_to_phone"
	ActivityMFAEnabled             Activity = "account.mfa_enabled"
	ActivityMFADisabled            Activity = "account.mfa_disabled"
	ActivityPhoneChangeRequested   Activity = "account.phone_change_requested"
	ActivityPhoneVerified          Activity = "account.phone_verified"
	ActivityPhoneRemoved           Activity = "account.phone_removed"
)

// AccountStatus captures where an account sits in its lifecycle.
type AccountStatus string

const (
	// AccountStatusPending means the activation flow has not completed.
	AccountStatusPending AccountStatus = "pending"
	// AccountStatusActive means the account can sign in.
	AccountStatusActive AccountStatus = "active"
	// AccountStatusLocked means the lockout policy tripped.
	AccountStatusLocked AccountStatus = "locked"
	// AccountStatusDisabled is terminal; the account was retired by an admin.
	AccountStatusDisabled AccountStatus = "disabled"
)

// PendingCodePurpose binds a stored one-time artifact to the flow that
// issued it so a code minted for one flow never verifies in another.
type PendingCodePurpose string

const (
	PurposeMFALogin      PendingCodePurpose = "mfa_login"
	PurposeActivation    PendingCodePurpose = "activation"
	PurposePasswordReset PendingCodePurpose = "password_reset"
	PurposePhoneChange   PendingCodePurpose = "phone_change"
)

// Account is the identity record. Email, username, and phone are stored
// normalized and are unique among non-deleted accounts. The pending code
// columns hold at most one outstanding one-time artifact; issuing a new
// challenge always replaces them.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID           uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FirstName    string    `bun:"first_name" json:"first_name,omitempty"`
	LastName     string    `bun:"last_name" json:"last_name,omitempty"`
	Username     string    `bun:"username,notnull" json:"username,omitempty"`
	Email        string    `bun:"email,notnull" json:"email,omitempty"`
	Phone        string    `bun:"phone_number,nullzero" json:"phone_number,omitempty"`
	PasswordHash string    `bun:"password_hash" json:"-"`

	EmailConfirmed    bool          `bun:"is_email_confirmed" json:"is_email_confirmed,omitempty"`
	PhoneConfirmed    bool          `bun:"is_phone_confirmed" json:"is_phone_confirmed,omitempty"`
	TwoFactorEnabled  bool          `bun:"is_two_factor_enabled" json:"is_two_factor_enabled,omitempty"`
	DefaultMFAChannel MFAChannel    `bun:"default_mfa_channel,nullzero" json:"default_mfa_channel,omitempty"`
	Status            AccountStatus `bun:"status,nullzero" json:"status,omitempty"`

	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at,nullzero" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`

	PendingCodeDigest   string             `bun:"pending_code_digest,nullzero" json:"-"`
	PendingCodePurpose  PendingCodePurpose `bun:"pending_code_purpose,nullzero" json:"-"`
	PendingCodeChannel  MFAChannel         `bun:"pending_code_channel,nullzero" json:"-"`
	PendingCodeIssuedAt *time.Time         `bun:"pending_code_issued_at,nullzero" json:"-"`

	LastUpdatedAt *time.Time `bun:"last_updated_at,nullzero" json:"last_updated_at,omitempty"`
	LastUpdatedBy string     `bun:"last_updated_by,nullzero" json:"last_updated_by,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`

	Roles []*Role `bun:"m2m:account_roles,join:Account=Role" json:"roles,omitempty"`

	// Activity is set by the operation mutating the account and read by
	// event handlers after commit. Not mapped to a column.
	Activity Activity `bun:"-" json:"-"`

	// IssuedCode holds the cleartext of a just-issued one-time code for
	// the post-commit notification handler. Only the digest is persisted.
	IssuedCode string `bun:"-" json:"-"`
}

// DisplayName is the name carried in token claims and notifications.
func (a *Account) DisplayName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Username
	}
	return name
}

// RoleNames returns the names of the assigned roles ordered by priority.
func (a *Account) RoleNames() []string {
	if len(a.Roles) == 0 {
		return nil
	}
	names := make([]string, 0, len(a.Roles))
	for _, r := range sortRolesByPriority(a.Roles) {
		names = append(names, r.Name)
	}
	return names
}

// EnsureStatus backfills the zero value for records created before the
// status column existed.
func (a *Account) EnsureStatus() {
	if a.Status == "" {
		a.Status = AccountStatusActive
	}
}

// CanSignIn reports whether the lifecycle state permits authentication.
func (a *Account) CanSignIn() bool {
	a.EnsureStatus()
	return a.Status == AccountStatusActive
}

// SetPendingCode replaces any outstanding one-time artifact.
func (a *Account) SetPendingCode(digest string, purpose PendingCodePurpose, channel MFAChannel, issuedAt time.Time) {
	a.PendingCodeDigest = digest
	a.PendingCodePurpose = purpose
	a.PendingCodeChannel = channel
	a.PendingCodeIssuedAt = &issuedAt
}

// ClearPendingCode consumes the outstanding one-time artifact.
func (a *Account) ClearPendingCode() {
	a.PendingCodeDigest = ""
	a.PendingCodePurpose = ""
	a.PendingCodeChannel = ""
	a.PendingCodeIssuedAt = nil
}

// Touch records the actor and time of the mutation about to be persisted.
func (a *Account) Touch(actor string) {
	now := time.Now()
	a.LastUpdatedAt = &now
	a.LastUpdatedBy = actor
}

// CreationEvent implements CreatesDomainEvent.
func (a *Account) CreationEvent() DomainEvent {
	return DomainEvent{Kind: EventCreated, Entity: a, OccurredAt: time.Now()}
}

// UpdateEvent implements UpdatesDomainEvent.
func (a *Account) UpdateEvent() DomainEvent {
	return DomainEvent{Kind: EventUpdated, Entity: a, OccurredAt: time.Now()}
}

var (
	_ CreatesDomainEvent = (*Account)(nil)
	_ UpdatesDomainEvent = (*Account)(nil)
)

// AccountRole is the join row between accounts and roles.
type AccountRole struct {
	bun.BaseModel `bun:"table:account_roles,alias:acr"`

	AccountID uuid.UUID `bun:"account_id,pk,type:uuid" json:"account_id,omitempty"`
	Account   *Account  `bun:"rel:belongs-to,join:account_id=id" json:"account,omitempty"`
	RoleID    uuid.UUID `bun:"role_id,pk,type:uuid" json:"role_id,omitempty"`
	Role      *Role     `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`
}
