package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	schoolauth "github.com/campuskit/schoolauth"
)

type resetOTPRepo struct {
	db DBTX
}

// Replace enforces the one-live-code rule in a single statement pair: old
// rows for the identifier go away before the new one lands.
func (r *resetOTPRepo) Replace(ctx context.Context, otp *schoolauth.ResetOTP) error {
	delQuery := `DELETE FROM reset_otps WHERE identifier = $1`
	if _, err := r.db.ExecContext(ctx, delQuery, otp.Identifier); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	insQuery := `
		INSERT INTO reset_otps
			(id, user_id, identifier, code_hash, method, expires_at,
			 attempts, max_attempts, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, insQuery,
		otp.ID, otp.UserID, otp.Identifier, otp.CodeHash, otp.Method,
		otp.ExpiresAt, otp.Attempts, otp.MaxAttempts, otp.Used, otp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *resetOTPRepo) FindCurrent(ctx context.Context, identifier string, now time.Time) (*schoolauth.ResetOTP, error) {
	query := `
		SELECT id, user_id, identifier, code_hash, method, expires_at,
		       attempts, max_attempts, used, created_at
		FROM reset_otps
		WHERE identifier = $1 AND used = FALSE AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var otp schoolauth.ResetOTP
	err := r.db.QueryRowContext(ctx, query, identifier, now).Scan(
		&otp.ID, &otp.UserID, &otp.Identifier, &otp.CodeHash, &otp.Method,
		&otp.ExpiresAt, &otp.Attempts, &otp.MaxAttempts, &otp.Used, &otp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, schoolauth.ErrResetNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &otp, nil
}

func (r *resetOTPRepo) IncrementAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE reset_otps
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`
	var attempts int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, schoolauth.ErrResetNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return attempts, nil
}

func (r *resetOTPRepo) MarkUsed(ctx context.Context, id string) error {
	query := `UPDATE reset_otps SET used = TRUE WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return schoolauth.ErrResetNotFound
	}
	return nil
}

func (r *resetOTPRepo) DeleteForUser(ctx context.Context, userID string) error {
	query := `DELETE FROM reset_otps WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *resetOTPRepo) PurgeStale(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM reset_otps WHERE used = TRUE OR expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}

type resetTokenRepo struct {
	db DBTX
}

func (r *resetTokenRepo) Create(ctx context.Context, t *schoolauth.ResetToken) error {
	query := `
		INSERT INTO reset_tokens (id, user_id, token_hash, expires_at, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.IP, t.UserAgent, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *resetTokenRepo) FindValid(ctx context.Context, tokenHash string, now time.Time) (*schoolauth.ResetToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, used_at, ip, user_agent, created_at
		FROM reset_tokens
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
	`
	var t schoolauth.ResetToken
	err := r.db.QueryRowContext(ctx, query, tokenHash, now).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.UsedAt,
		&t.IP, &t.UserAgent, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, schoolauth.ErrResetNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &t, nil
}

// Consume only matches a still-unused row, so two concurrent completions
// of the same link resolve to one winner.
func (r *resetTokenRepo) Consume(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE reset_tokens
		SET used_at = $2
		WHERE id = $1 AND used_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return schoolauth.ErrResetNotFound
	}
	return nil
}

func (r *resetTokenRepo) PurgeStale(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM reset_tokens WHERE used_at IS NOT NULL OR expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}
