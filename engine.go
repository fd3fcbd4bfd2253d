package schoolauth

import (
	"context"
	"errors"

	"github.com/campuskit/schoolauth/internal"
	"github.com/campuskit/schoolauth/internal/otpguard"
	"github.com/campuskit/schoolauth/jwt"
	"github.com/campuskit/schoolauth/password"
)

// Engine is the authentication core. All state lives in the injected Store;
// the Engine itself is immutable after Build and safe for concurrent use.
type Engine struct {
	config    Config
	store     Store
	deliverer OTPDeliverer
	guard     otpguard.Guard
	hasher    *password.Argon2
	decoyHash string
	jwt       *jwt.Manager
	audit     *auditDispatcher
}

// newDecoyHash hashes a throwaway random secret. Login verifies against it
// when the identifier matches no account, so the unknown-user path costs
// the same argon2 work as the known-user path.
func newDecoyHash(hasher *password.Argon2) (string, error) {
	secret, err := internal.NewResetToken()
	if err != nil {
		return "", err
	}
	return hasher.Hash(secret)
}

// Close flushes and stops the audit dispatcher. Idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// VerifyAccess validates an access token and confirms its session is still
// alive. Revocation is absolute: a revoked session fails verification even
// while the token signature and expiry are still good.
func (e *Engine) VerifyAccess(ctx context.Context, token string) (*AuthResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwt.VerifyAccess(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	session, err := e.store.Sessions().FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.Revoked() {
		return nil, ErrSessionRevoked
	}
	if session.UserID != claims.UserID {
		return nil, ErrTokenInvalid
	}

	return &AuthResult{
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
	}, nil
}
