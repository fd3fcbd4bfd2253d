package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	schoolauth "github.com/campuskit/schoolauth"
)

type sessionRepo struct {
	db DBTX
}

func (r *sessionRepo) Create(ctx context.Context, s *schoolauth.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, token_hash, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, s.ID, s.UserID, s.TokenHash, s.IP, s.UserAgent, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*schoolauth.Session, error) {
	query := `
		SELECT id, user_id, token_hash, ip, user_agent, created_at, revoked_at, revoke_reason
		FROM sessions
		WHERE id = $1
	`
	var (
		s      schoolauth.Session
		reason sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.TokenHash, &s.IP, &s.UserAgent,
		&s.CreatedAt, &s.RevokedAt, &reason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, schoolauth.ErrSessionNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	s.RevokeReason = reason.String
	return &s, nil
}

// Rotate is a compare-and-set: the UPDATE matches only while the stored
// hash equals currentHash and the session is alive, so concurrent rotations
// of the same session resolve to exactly one winner at the database.
func (r *sessionRepo) Rotate(ctx context.Context, sessionID, currentHash, nextHash, ip, userAgent string) error {
	query := `
		UPDATE sessions
		SET token_hash = $3, ip = $4, user_agent = $5
		WHERE id = $1 AND token_hash = $2 AND revoked_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, sessionID, currentHash, nextHash, ip, userAgent)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return schoolauth.ErrTokenHashMismatch
	}
	return nil
}

func (r *sessionRepo) Revoke(ctx context.Context, sessionID, reason string, at time.Time) error {
	query := `
		UPDATE sessions
		SET revoked_at = $3, revoke_reason = $2
		WHERE id = $1 AND revoked_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, sessionID, reason, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return schoolauth.ErrSessionRevoked
	}
	return nil
}

func (r *sessionRepo) RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) (int64, error) {
	query := `
		UPDATE sessions
		SET revoked_at = $3, revoke_reason = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, userID, reason, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}
