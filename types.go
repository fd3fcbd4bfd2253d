package schoolauth

import (
	"context"
	"time"
)

// Role identifies a user's position in the school. It is a closed set:
// adding a role means touching every exhaustive switch over it, which is
// exactly the point.
type Role uint8

const (
	// RoleSuperAdmin is the platform operator role.
	RoleSuperAdmin Role = iota
	// RoleAdmin is the school administrator role.
	RoleAdmin
	// RoleTeacher is the teaching staff role.
	RoleTeacher
	// RoleStaff is the non-teaching staff role.
	RoleStaff
	// RoleStudent is the enrolled student role.
	RoleStudent
	// RoleParent is the guardian role.
	RoleParent
)

// String returns the canonical lowercase name of the role.
func (r Role) String() string {
	switch r {
	case RoleSuperAdmin:
		return "super_admin"
	case RoleAdmin:
		return "admin"
	case RoleTeacher:
		return "teacher"
	case RoleStaff:
		return "staff"
	case RoleStudent:
		return "student"
	case RoleParent:
		return "parent"
	default:
		return "unknown"
	}
}

// CanSelfServeReset reports whether the role may use the self-service
// password reset flows. Students and parents go through an administrator.
func (r Role) CanSelfServeReset() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleTeacher, RoleStaff:
		return true
	case RoleStudent, RoleParent:
		return false
	default:
		return false
	}
}

// ParseRole maps a stored role name back to a Role.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "super_admin":
		return RoleSuperAdmin, true
	case "admin":
		return RoleAdmin, true
	case "teacher":
		return RoleTeacher, true
	case "staff":
		return RoleStaff, true
	case "student":
		return RoleStudent, true
	case "parent":
		return RoleParent, true
	default:
		return 0, false
	}
}

// AccountState is the authentication eligibility of a user, derived from the
// stored flags. Call sites switch over it instead of re-deriving boolean
// combinations.
type AccountState uint8

const (
	// StateActive means the account can authenticate normally.
	StateActive AccountState = iota
	// StateDisabled means the account is deactivated by an administrator.
	StateDisabled
	// StateDeleted means the account is soft-deleted.
	StateDeleted
	// StatePendingPasswordChange means the account must change its password
	// before a session can be issued.
	StatePendingPasswordChange
)

// User is the identity record consumed by the engine. The surrounding
// application owns it; the engine only reads it and updates the password
// fields through UserStore.
type User struct {
	ID                 string
	Email              string
	Phone              string
	FullName           string
	PasswordHash       string
	Role               Role
	IsActive           bool
	DeletedAt          *time.Time
	NeedPasswordChange bool
	LastPasswordChange time.Time
}

// AccountState derives the eligibility state from the stored flags.
// Deletion wins over deactivation, deactivation over a pending change.
func (u *User) AccountState() AccountState {
	switch {
	case u.DeletedAt != nil:
		return StateDeleted
	case !u.IsActive:
		return StateDisabled
	case u.NeedPasswordChange:
		return StatePendingPasswordChange
	default:
		return StateActive
	}
}

// Session is one refresh-token lineage. Rotation overwrites TokenHash in
// place; the row itself lives until revoked.
type Session struct {
	ID           string
	UserID       string
	TokenHash    string
	IP           string
	UserAgent    string
	CreatedAt    time.Time
	RevokedAt    *time.Time
	RevokeReason string
}

// Revoked reports whether the session has been terminated.
func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}

// ResetOTP is a one-time numeric reset code. The plaintext code is never
// stored; CodeHash is an argon2id hash.
type ResetOTP struct {
	ID          string
	UserID      string
	Identifier  string
	CodeHash    string
	Method      string
	ExpiresAt   time.Time
	Attempts    int
	MaxAttempts int
	Used        bool
	CreatedAt   time.Time
}

// ResetToken is a single-use opaque token for the link-based reset flow.
// TokenHash is a sha256 hex digest of the token string.
type ResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// UserStore is the identity persistence contract. Lookups return
// ErrUserNotFound when no row matches.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByEmailOrPhone(ctx context.Context, identifier string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)

	// SetPassword stores the new hash, clears the forced-change flag and
	// stamps the last-change time in one write.
	SetPassword(ctx context.Context, userID, passwordHash string, changedAt time.Time) error
}

// SessionStore is the session persistence contract.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	FindByID(ctx context.Context, id string) (*Session, error)

	// Rotate replaces the stored token hash with nextHash only if the stored
	// hash still equals currentHash and the session is not revoked. It is a
	// compare-and-set: under concurrent refreshes exactly one caller wins,
	// the others get ErrTokenHashMismatch. IP and user agent are refreshed
	// alongside the hash.
	Rotate(ctx context.Context, sessionID, currentHash, nextHash, ip, userAgent string) error

	// Revoke terminates the session. Returns ErrSessionRevoked when it is
	// already terminated.
	Revoke(ctx context.Context, sessionID, reason string, at time.Time) error

	// RevokeAllForUser terminates every active session of the user and
	// returns how many were affected.
	RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) (int64, error)
}

// ResetOTPStore is the OTP persistence contract.
type ResetOTPStore interface {
	// Replace deletes any prior rows for the OTP's identifier and inserts
	// the new row, leaving at most one active OTP per identifier.
	Replace(ctx context.Context, otp *ResetOTP) error

	// FindCurrent returns the newest unused, unexpired OTP for the
	// identifier, or ErrResetNotFound.
	FindCurrent(ctx context.Context, identifier string, now time.Time) (*ResetOTP, error)

	// IncrementAttempts bumps the attempt counter and returns the new value.
	IncrementAttempts(ctx context.Context, id string) (int, error)

	MarkUsed(ctx context.Context, id string) error
	DeleteForUser(ctx context.Context, userID string) error

	// PurgeStale deletes expired or already-used rows.
	PurgeStale(ctx context.Context, now time.Time) (int64, error)
}

// ResetTokenStore is the link-token persistence contract.
type ResetTokenStore interface {
	Create(ctx context.Context, t *ResetToken) error

	// FindValid returns the unused, unexpired row matching the token hash,
	// or ErrResetNotFound.
	FindValid(ctx context.Context, tokenHash string, now time.Time) (*ResetToken, error)

	// Consume stamps UsedAt on a still-unused row; ErrResetNotFound if the
	// row was consumed or removed in the meantime.
	Consume(ctx context.Context, id string, at time.Time) error

	PurgeStale(ctx context.Context, now time.Time) (int64, error)
}

// Store aggregates the persistence contracts and provides transaction
// scoping. InTx runs fn against a Store view bound to one transaction;
// returning an error rolls everything back. Implementations without real
// transactions may run fn against themselves, accepting weaker atomicity.
type Store interface {
	Users() UserStore
	Sessions() SessionStore
	ResetOTPs() ResetOTPStore
	ResetTokens() ResetTokenStore

	InTx(ctx context.Context, fn func(Store) error) error
}

// OTPDeliverer hands reset secrets to the user through an out-of-band
// channel. Real deployments implement email/SMS dispatch; the library only
// ships a development implementation that logs the plaintext.
type OTPDeliverer interface {
	DeliverOTP(ctx context.Context, user *User, identifier, code string) error
	DeliverResetLink(ctx context.Context, user *User, identifier, token string) error
}

// TokenPair carries one issued access/refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginResult is returned by Engine.Login. When RequirePasswordChange is
// set, no session was created and ChangeToken gates the mandatory password
// change instead of the token pair.
type LoginResult struct {
	AccessToken  string
	RefreshToken string

	RequirePasswordChange bool
	ChangeToken           string

	UserID   string
	Email    string
	FullName string
}

// AuthResult is returned by Engine.VerifyAccess for a token that passed
// both signature and session checks.
type AuthResult struct {
	UserID    string
	SessionID string
}
