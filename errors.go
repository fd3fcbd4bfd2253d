package schoolauth

import "errors"

var (
	// ErrEngineNotReady is returned when the engine is used before Build
	// wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrInvalidCredentials covers every login failure that must not reveal
	// its root cause: unknown email, wrong password, disabled or deleted
	// account. The audit detail map carries the real reason.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound is returned for operations on an already-identified
	// user whose record has since disappeared.
	ErrUserNotFound = errors.New("user not found")

	// ErrTokenInvalid covers malformed, expired, mistyped and wrongly
	// signed tokens alike.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrSessionNotFound is returned when a token references a session that
	// does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionRevoked is returned when the referenced session was
	// terminated. Distinct from ErrTokenInvalid so callers can force a full
	// re-login instead of a retry.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrSessionConflict is returned to the loser of a concurrent refresh,
	// or to a caller replaying a superseded refresh token.
	ErrSessionConflict = errors.New("refresh token superseded")

	// ErrTokenHashMismatch is the store-level sentinel behind
	// ErrSessionConflict: the conditional rotation write matched no row.
	ErrTokenHashMismatch = errors.New("stored token hash mismatch")

	// ErrPasswordReuse rejects a new password equal to the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")

	// ErrPasswordPolicy rejects passwords the hasher refuses to process.
	ErrPasswordPolicy = errors.New("password policy violation")

	// ErrChangeNotRequired is returned by the forced-change endpoint when
	// the account no longer qualifies: flag cleared, user missing, disabled
	// or deleted. The distinction is logged, not exposed.
	ErrChangeNotRequired = errors.New("password change not required")

	// ErrResetNotSelfService tells students and parents to contact an
	// administrator. Deliberately specific: it discloses policy, never
	// account existence.
	ErrResetNotSelfService = errors.New("password reset is not self-service for this account, contact an administrator")

	// ErrResetInvalid covers an absent, expired, already-used or mismatched
	// reset code or token.
	ErrResetInvalid = errors.New("reset code invalid or expired")

	// ErrResetAttemptsExceeded is returned once the OTP attempt ceiling is
	// reached; the correct code no longer helps.
	ErrResetAttemptsExceeded = errors.New("reset attempts exceeded")

	// ErrResetCooldown suppresses a duplicate verification submitted within
	// the de-duplication window.
	ErrResetCooldown = errors.New("duplicate reset verification, retry shortly")

	// ErrResetNotFound is the store-level sentinel for missing reset rows.
	ErrResetNotFound = errors.New("reset record not found")

	// ErrDeliveryFailed wraps OTP/link delivery failures.
	ErrDeliveryFailed = errors.New("reset delivery failed")
)
