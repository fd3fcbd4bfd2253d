package schoolauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campuskit/schoolauth/internal"
	"github.com/campuskit/schoolauth/jwt"
)

// RequestPasswordReset starts the OTP reset flow for an email or phone
// identifier.
//
// Unknown identifiers and ineligible account states return nil like a
// successful request does, so the endpoint cannot be used to probe which
// identifiers exist. The one deliberate exception is role policy:
// students and parents get ErrResetNotSelfService so they are pointed at
// an administrator instead of waiting for a code that never arrives.
// Requesting again replaces any previous code, so at most one OTP is live
// per identifier.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if e.deliverer == nil {
		return errors.New("otp deliverer not configured")
	}

	identifier = normalizeIdentifier(identifier)

	user, err := e.store.Users().FindByEmailOrPhone(ctx, identifier)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if user == nil {
		e.emitAudit(ctx, auditActionResetRequest, AuditFail, "", "", nil, func() map[string]string {
			return map[string]string{"reason": "unknown_identifier"}
		})
		return nil
	}

	if !user.Role.CanSelfServeReset() {
		e.emitAudit(ctx, auditActionResetRequest, AuditBlocked, user.ID, "", ErrResetNotSelfService, func() map[string]string {
			return map[string]string{"role": user.Role.String()}
		})
		return ErrResetNotSelfService
	}

	switch user.AccountState() {
	case StateDeleted, StateDisabled:
		e.emitAudit(ctx, auditActionResetRequest, AuditBlocked, user.ID, "", nil, func() map[string]string {
			return map[string]string{"state": stateName(user.AccountState())}
		})
		return nil
	}

	code, err := internal.NewOTP(e.config.Reset.OTPDigits)
	if err != nil {
		return err
	}
	codeHash, err := e.hasher.HashCode(code)
	if err != nil {
		return err
	}

	now := time.Now()
	otp := &ResetOTP{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Identifier:  identifier,
		CodeHash:    codeHash,
		Method:      deliveryMethod(identifier),
		ExpiresAt:   now.Add(e.config.Reset.OTPTTL),
		MaxAttempts: e.config.Reset.OTPMaxAttempts,
		CreatedAt:   now,
	}
	if err := e.store.ResetOTPs().Replace(ctx, otp); err != nil {
		return err
	}

	if err := e.deliverer.DeliverOTP(ctx, user, identifier, code); err != nil {
		e.emitAudit(ctx, auditActionResetRequest, AuditFail, user.ID, "", err, func() map[string]string {
			return map[string]string{"method": otp.Method}
		})
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	e.emitAudit(ctx, auditActionResetRequest, AuditSuccess, user.ID, "", nil, func() map[string]string {
		return map[string]string{"method": otp.Method}
	})
	return nil
}

// VerifyPasswordReset checks a submitted OTP and, on success, returns a
// short-lived reset token that authorizes exactly one ResetPassword call.
//
// A wrong code consumes one attempt; once the ceiling is reached even the
// correct code is refused until a new OTP is requested. Duplicate submits
// of the same identifier/code pair inside the cooldown window are
// suppressed before any attempt is consumed.
func (e *Engine) VerifyPasswordReset(ctx context.Context, identifier, code string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}

	identifier = normalizeIdentifier(identifier)

	if !internal.IsNumeric(code) {
		e.emitAudit(ctx, auditActionResetVerify, AuditFail, "", "", ErrResetInvalid, nil)
		return "", ErrResetInvalid
	}

	if e.guard != nil && !e.guard.Allow(ctx, identifier+"|"+code+"|"+clientIPFromContext(ctx)) {
		e.emitAudit(ctx, auditActionResetVerify, AuditBlocked, "", "", ErrResetCooldown, nil)
		return "", ErrResetCooldown
	}

	now := time.Now()
	otp, err := e.store.ResetOTPs().FindCurrent(ctx, identifier, now)
	if err != nil {
		if errors.Is(err, ErrResetNotFound) {
			e.emitAudit(ctx, auditActionResetVerify, AuditFail, "", "", ErrResetInvalid, nil)
			return "", ErrResetInvalid
		}
		return "", err
	}

	if otp.Attempts >= otp.MaxAttempts {
		e.emitAudit(ctx, auditActionResetVerify, AuditBlocked, otp.UserID, "", ErrResetAttemptsExceeded, nil)
		return "", ErrResetAttemptsExceeded
	}

	if !e.hasher.Verify(code, otp.CodeHash) {
		attempts, incErr := e.store.ResetOTPs().IncrementAttempts(ctx, otp.ID)
		if incErr != nil {
			return "", incErr
		}
		if attempts >= otp.MaxAttempts {
			e.emitAudit(ctx, auditActionResetVerify, AuditBlocked, otp.UserID, "", ErrResetAttemptsExceeded, nil)
			return "", ErrResetAttemptsExceeded
		}
		remaining := otp.MaxAttempts - attempts
		e.emitAudit(ctx, auditActionResetVerify, AuditFail, otp.UserID, "", ErrResetInvalid, func() map[string]string {
			return map[string]string{"attempts_remaining": fmt.Sprintf("%d", remaining)}
		})
		return "", fmt.Errorf("%w: %d attempts remaining", ErrResetInvalid, remaining)
	}

	if err := e.store.ResetOTPs().MarkUsed(ctx, otp.ID); err != nil {
		return "", err
	}

	resetToken, err := e.jwt.SignTemp(otp.UserID, jwt.PurposePasswordReset, e.config.Reset.ResetTokenTTL)
	if err != nil {
		return "", err
	}

	e.emitAudit(ctx, auditActionResetVerify, AuditSuccess, otp.UserID, "", nil, nil)
	return resetToken, nil
}

// ResetPassword completes the OTP flow using the token from
// VerifyPasswordReset. The new password must differ from the current one;
// on success all sessions of the user are revoked and any leftover reset
// codes are discarded.
func (e *Engine) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwt.VerifyTemp(resetToken, jwt.PurposePasswordReset)
	if err != nil {
		e.emitAudit(ctx, auditActionReset, AuditFail, "", "", ErrTokenInvalid, nil)
		return ErrTokenInvalid
	}

	user, err := e.store.Users().FindByID(ctx, claims.UserID)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if user == nil {
		e.emitAudit(ctx, auditActionReset, AuditFail, claims.UserID, "", ErrUserNotFound, nil)
		return ErrUserNotFound
	}

	switch user.AccountState() {
	case StateDeleted, StateDisabled:
		e.emitAudit(ctx, auditActionReset, AuditBlocked, user.ID, "", ErrResetInvalid, func() map[string]string {
			return map[string]string{"state": stateName(user.AccountState())}
		})
		return ErrResetInvalid
	}

	if err := e.applyNewPassword(ctx, user, newPassword, "password reset"); err != nil {
		e.emitAudit(ctx, auditActionReset, AuditFail, user.ID, "", err, nil)
		return err
	}

	// Best-effort: a leftover used OTP row only occupies space.
	_ = e.store.ResetOTPs().DeleteForUser(ctx, user.ID)

	e.emitAudit(ctx, auditActionReset, AuditSuccess, user.ID, "", nil, nil)
	return nil
}

// RequestPasswordResetLink starts the link-based reset flow: instead of a
// numeric code, the user receives an opaque high-entropy token embedded in
// a URL. Only the sha256 of the token is stored. The same enumeration and
// role rules as RequestPasswordReset apply.
func (e *Engine) RequestPasswordResetLink(ctx context.Context, identifier string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if e.deliverer == nil {
		return errors.New("otp deliverer not configured")
	}

	identifier = normalizeIdentifier(identifier)

	user, err := e.store.Users().FindByEmailOrPhone(ctx, identifier)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if user == nil {
		e.emitAudit(ctx, auditActionLinkRequest, AuditFail, "", "", nil, func() map[string]string {
			return map[string]string{"reason": "unknown_identifier"}
		})
		return nil
	}

	if !user.Role.CanSelfServeReset() {
		e.emitAudit(ctx, auditActionLinkRequest, AuditBlocked, user.ID, "", ErrResetNotSelfService, func() map[string]string {
			return map[string]string{"role": user.Role.String()}
		})
		return ErrResetNotSelfService
	}

	switch user.AccountState() {
	case StateDeleted, StateDisabled:
		e.emitAudit(ctx, auditActionLinkRequest, AuditBlocked, user.ID, "", nil, func() map[string]string {
			return map[string]string{"state": stateName(user.AccountState())}
		})
		return nil
	}

	token, err := internal.NewResetToken()
	if err != nil {
		return err
	}

	now := time.Now()
	row := &ResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: internal.HashToken(token),
		ExpiresAt: now.Add(e.config.Reset.ResetTokenTTL),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		CreatedAt: now,
	}
	if err := e.store.ResetTokens().Create(ctx, row); err != nil {
		return err
	}

	if err := e.deliverer.DeliverResetLink(ctx, user, identifier, token); err != nil {
		e.emitAudit(ctx, auditActionLinkRequest, AuditFail, user.ID, "", err, nil)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	e.emitAudit(ctx, auditActionLinkRequest, AuditSuccess, user.ID, "", nil, nil)
	return nil
}

// ResetPasswordWithLink completes the link-based flow. Consuming the token
// and writing the new password happen in one transaction, so a token can
// never be burned without the password actually changing.
func (e *Engine) ResetPasswordWithLink(ctx context.Context, token, newPassword string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	now := time.Now()
	row, err := e.store.ResetTokens().FindValid(ctx, internal.HashToken(token), now)
	if err != nil {
		if errors.Is(err, ErrResetNotFound) {
			e.emitAudit(ctx, auditActionLinkReset, AuditFail, "", "", ErrResetInvalid, nil)
			return ErrResetInvalid
		}
		return err
	}

	user, err := e.store.Users().FindByID(ctx, row.UserID)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if user == nil {
		e.emitAudit(ctx, auditActionLinkReset, AuditFail, row.UserID, "", ErrUserNotFound, nil)
		return ErrUserNotFound
	}

	switch user.AccountState() {
	case StateDeleted, StateDisabled:
		e.emitAudit(ctx, auditActionLinkReset, AuditBlocked, user.ID, "", ErrResetInvalid, func() map[string]string {
			return map[string]string{"state": stateName(user.AccountState())}
		})
		return ErrResetInvalid
	}

	if e.hasher.Verify(newPassword, user.PasswordHash) {
		e.emitAudit(ctx, auditActionLinkReset, AuditFail, user.ID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.emitAudit(ctx, auditActionLinkReset, AuditFail, user.ID, "", ErrPasswordPolicy, nil)
		return errors.Join(ErrPasswordPolicy, err)
	}

	err = e.store.InTx(ctx, func(tx Store) error {
		if err := tx.ResetTokens().Consume(ctx, row.ID, now); err != nil {
			if errors.Is(err, ErrResetNotFound) {
				return ErrResetInvalid
			}
			return err
		}
		if err := tx.Users().SetPassword(ctx, user.ID, newHash, now); err != nil {
			return err
		}
		_, err := tx.Sessions().RevokeAllForUser(ctx, user.ID, "password reset", now)
		return err
	})
	if err != nil {
		e.emitAudit(ctx, auditActionLinkReset, AuditFail, user.ID, "", err, nil)
		return err
	}

	e.emitAudit(ctx, auditActionLinkReset, AuditSuccess, user.ID, "", nil, nil)
	return nil
}

// CleanupResetArtifacts purges expired and consumed reset rows. Intended
// to run from a periodic job; the flows stay correct without it, this only
// bounds table growth.
func (e *Engine) CleanupResetArtifacts(ctx context.Context) (int64, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}

	now := time.Now()
	otps, err := e.store.ResetOTPs().PurgeStale(ctx, now)
	if err != nil {
		return 0, err
	}
	tokens, err := e.store.ResetTokens().PurgeStale(ctx, now)
	if err != nil {
		return otps, err
	}

	total := otps + tokens
	if total > 0 {
		e.emitAudit(ctx, auditActionResetCleanup, AuditSuccess, "", "", nil, func() map[string]string {
			return map[string]string{
				"otps_purged":   fmt.Sprintf("%d", otps),
				"tokens_purged": fmt.Sprintf("%d", tokens),
			}
		})
	}
	return total, nil
}

// normalizeIdentifier lowercases and trims; phone numbers additionally
// lose interior spaces and dashes.
func normalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(strings.ToLower(identifier))
	if strings.Contains(identifier, "@") {
		return identifier
	}
	identifier = strings.ReplaceAll(identifier, " ", "")
	identifier = strings.ReplaceAll(identifier, "-", "")
	return identifier
}

// deliveryMethod derives the out-of-band channel from the identifier
// shape.
func deliveryMethod(identifier string) string {
	if strings.Contains(identifier, "@") {
		return "email"
	}
	return "sms"
}
