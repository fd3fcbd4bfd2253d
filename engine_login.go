package schoolauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campuskit/schoolauth/internal"
	"github.com/campuskit/schoolauth/jwt"
)

// Login authenticates an email/password pair.
//
// Every rejection surfaces as ErrInvalidCredentials regardless of cause
// (unknown email, wrong password, disabled or deleted account); the audit
// trail records the real reason. The unknown-email path still performs one
// full password verification against a decoy hash so response timing does
// not distinguish it from a wrong password.
//
// An account flagged for a mandatory password change gets no session:
// the result carries a short-lived change token instead of the pair.
func (e *Engine) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	email = strings.TrimSpace(strings.ToLower(email))

	user, err := e.store.Users().FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	if user == nil {
		e.hasher.Verify(pass, e.decoyHash)
		e.emitAudit(ctx, auditActionLogin, AuditFail, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "unknown_email"}
		})
		return nil, ErrInvalidCredentials
	}

	if !e.hasher.Verify(pass, user.PasswordHash) {
		e.emitAudit(ctx, auditActionLogin, AuditFail, user.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "wrong_password"}
		})
		return nil, ErrInvalidCredentials
	}

	switch user.AccountState() {
	case StateDeleted:
		e.emitAudit(ctx, auditActionLogin, AuditBlocked, user.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "account_deleted"}
		})
		return nil, ErrInvalidCredentials
	case StateDisabled:
		e.emitAudit(ctx, auditActionLogin, AuditBlocked, user.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "account_disabled"}
		})
		return nil, ErrInvalidCredentials
	case StatePendingPasswordChange:
		changeToken, err := e.jwt.SignTemp(user.ID, jwt.PurposePasswordChange, e.config.Reset.ChangeTokenTTL)
		if err != nil {
			return nil, err
		}
		e.emitAudit(ctx, auditActionLogin, AuditSuccess, user.ID, "", nil, func() map[string]string {
			return map[string]string{"outcome": "password_change_required"}
		})
		return &LoginResult{
			RequirePasswordChange: true,
			ChangeToken:           changeToken,
			UserID:                user.ID,
			Email:                 user.Email,
			FullName:              user.FullName,
		}, nil
	}

	pair, sessionID, err := e.openSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditActionLogin, AuditSuccess, user.ID, sessionID, nil, nil)

	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UserID:       user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
	}, nil
}

// openSession creates a session row and signs the token pair bound to it.
// The session stores only the hash of the refresh token; the plaintext
// exists solely in the returned pair.
func (e *Engine) openSession(ctx context.Context, userID string) (*TokenPair, string, error) {
	sessionID := uuid.NewString()

	accessToken, err := e.jwt.SignAccess(userID, sessionID)
	if err != nil {
		return nil, "", err
	}
	refreshToken, err := e.jwt.SignRefresh(userID, sessionID)
	if err != nil {
		return nil, "", err
	}

	session := &Session{
		ID:        sessionID,
		UserID:    userID,
		TokenHash: internal.HashToken(refreshToken),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		CreatedAt: time.Now(),
	}
	if err := e.store.Sessions().Create(ctx, session); err != nil {
		return nil, "", err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, sessionID, nil
}
