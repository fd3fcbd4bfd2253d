package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	schoolauth "github.com/campuskit/schoolauth"
)

type userRepo struct {
	db DBTX
}

const userColumns = `
	id, email, phone, full_name, password_hash, role,
	is_active, deleted_at, need_password_change, last_password_change
`

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*schoolauth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *userRepo) FindByEmailOrPhone(ctx context.Context, identifier string) (*schoolauth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 OR phone = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, identifier))
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*schoolauth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *userRepo) SetPassword(ctx context.Context, userID, passwordHash string, changedAt time.Time) error {
	query := `
		UPDATE users
		SET password_hash = $2,
		    need_password_change = FALSE,
		    last_password_change = $3
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, userID, passwordHash, changedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return schoolauth.ErrUserNotFound
	}
	return nil
}

func (r *userRepo) scanOne(row *sql.Row) (*schoolauth.User, error) {
	var (
		u        schoolauth.User
		roleName string
		phone    sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.Email, &phone, &u.FullName, &u.PasswordHash, &roleName,
		&u.IsActive, &u.DeletedAt, &u.NeedPasswordChange, &u.LastPasswordChange,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, schoolauth.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.Phone = phone.String

	role, ok := schoolauth.ParseRole(roleName)
	if !ok {
		return nil, fmt.Errorf("unknown role %q for user %s", roleName, u.ID)
	}
	u.Role = role
	return &u, nil
}
