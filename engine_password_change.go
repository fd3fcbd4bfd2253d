package schoolauth

import (
	"context"
	"errors"
	"time"

	"github.com/campuskit/schoolauth/jwt"
)

// ChangeRequiredPassword completes the mandatory first-login password
// change gated by the change token from Login.
//
// The account must still be in the pending-change state; a cleared flag,
// a disabled or deleted account, or a vanished user all yield
// ErrChangeNotRequired. On success every session of the user is revoked,
// which for this flow is a no-op safeguard since no session was issued.
// The caller logs in again with the new password.
func (e *Engine) ChangeRequiredPassword(ctx context.Context, changeToken, newPassword string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwt.VerifyTemp(changeToken, jwt.PurposePasswordChange)
	if err != nil {
		e.emitAudit(ctx, auditActionForcedChange, AuditFail, "", "", ErrTokenInvalid, nil)
		return ErrTokenInvalid
	}

	user, err := e.store.Users().FindByID(ctx, claims.UserID)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if user == nil {
		e.emitAudit(ctx, auditActionForcedChange, AuditFail, claims.UserID, "", ErrChangeNotRequired, func() map[string]string {
			return map[string]string{"reason": "user_missing"}
		})
		return ErrChangeNotRequired
	}

	if user.AccountState() != StatePendingPasswordChange {
		e.emitAudit(ctx, auditActionForcedChange, AuditBlocked, user.ID, "", ErrChangeNotRequired, func() map[string]string {
			return map[string]string{"state": stateName(user.AccountState())}
		})
		return ErrChangeNotRequired
	}

	if err := e.applyNewPassword(ctx, user, newPassword, "forced password change"); err != nil {
		e.emitAudit(ctx, auditActionForcedChange, AuditFail, user.ID, "", err, nil)
		return err
	}

	e.emitAudit(ctx, auditActionForcedChange, AuditSuccess, user.ID, "", nil, nil)
	return nil
}

// applyNewPassword is the shared tail of every password-setting flow:
// reject reuse of the current password, hash, store and revoke all
// sessions in one transaction.
func (e *Engine) applyNewPassword(ctx context.Context, user *User, newPassword, revokeReason string) error {
	if e.hasher.Verify(newPassword, user.PasswordHash) {
		return ErrPasswordReuse
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return errors.Join(ErrPasswordPolicy, err)
	}

	now := time.Now()
	return e.store.InTx(ctx, func(tx Store) error {
		if err := tx.Users().SetPassword(ctx, user.ID, newHash, now); err != nil {
			return err
		}
		_, err := tx.Sessions().RevokeAllForUser(ctx, user.ID, revokeReason, now)
		return err
	})
}

func stateName(s AccountState) string {
	switch s {
	case StateActive:
		return "active"
	case StateDisabled:
		return "disabled"
	case StateDeleted:
		return "deleted"
	case StatePendingPasswordChange:
		return "pending_password_change"
	default:
		return "unknown"
	}
}
