package schoolauth

import (
	"context"
	"errors"
	"time"

	"github.com/campuskit/schoolauth/internal"
)

// Refresh rotates a session: it validates the presented refresh token,
// atomically swaps the stored token hash for a new one and returns a fresh
// access/refresh pair.
//
// The swap is a compare-and-set on the stored hash. Under concurrent
// refreshes of the same session exactly one caller wins; the others, and
// anyone replaying an already-rotated token, get ErrSessionConflict. The
// session itself stays alive, so the holder of the winning token continues
// unaffected.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwt.VerifyRefresh(refreshToken)
	if err != nil {
		e.emitAudit(ctx, auditActionRefresh, AuditFail, "", "", ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	}

	session, err := e.store.Sessions().FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			e.emitAudit(ctx, auditActionRefresh, AuditFail, claims.UserID, claims.SessionID, ErrSessionNotFound, nil)
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.Revoked() {
		e.emitAudit(ctx, auditActionRefresh, AuditBlocked, claims.UserID, claims.SessionID, ErrSessionRevoked, nil)
		return nil, ErrSessionRevoked
	}
	if session.UserID != claims.UserID {
		e.emitAudit(ctx, auditActionRefresh, AuditFail, claims.UserID, claims.SessionID, ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	}

	nextAccess, err := e.jwt.SignAccess(claims.UserID, claims.SessionID)
	if err != nil {
		return nil, err
	}
	nextRefresh, err := e.jwt.SignRefresh(claims.UserID, claims.SessionID)
	if err != nil {
		return nil, err
	}

	err = e.store.Sessions().Rotate(
		ctx,
		claims.SessionID,
		internal.HashToken(refreshToken),
		internal.HashToken(nextRefresh),
		clientIPFromContext(ctx),
		userAgentFromContext(ctx),
	)
	if err != nil {
		if errors.Is(err, ErrTokenHashMismatch) {
			e.emitAudit(ctx, auditActionRefresh, AuditBlocked, claims.UserID, claims.SessionID, ErrSessionConflict, func() map[string]string {
				return map[string]string{"reason": "superseded_refresh_token"}
			})
			return nil, ErrSessionConflict
		}
		return nil, err
	}

	e.emitAudit(ctx, auditActionRefresh, AuditSuccess, claims.UserID, claims.SessionID, nil, nil)

	return &TokenPair{
		AccessToken:  nextAccess,
		RefreshToken: nextRefresh,
	}, nil
}

// Logout revokes the session referenced by the refresh token. Logging out
// an already-revoked session returns ErrSessionRevoked; a conflicting
// stored hash does not matter here because revocation terminates the whole
// lineage either way.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwt.VerifyRefresh(refreshToken)
	if err != nil {
		e.emitAudit(ctx, auditActionLogout, AuditFail, "", "", ErrTokenInvalid, nil)
		return ErrTokenInvalid
	}

	session, err := e.store.Sessions().FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if session.UserID != claims.UserID {
		return ErrTokenInvalid
	}
	if session.Revoked() {
		return ErrSessionRevoked
	}

	if err := e.store.Sessions().Revoke(ctx, claims.SessionID, "logout", time.Now()); err != nil {
		return err
	}

	e.emitAudit(ctx, auditActionLogout, AuditSuccess, claims.UserID, claims.SessionID, nil, nil)
	return nil
}
