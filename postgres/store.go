// Package postgres implements the engine's Store contract on PostgreSQL,
// accessed through database/sql with the pgx stdlib driver. Schema setup
// runs through embedded goose migrations.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	schoolauth "github.com/campuskit/schoolauth"
	"github.com/campuskit/schoolauth/postgres/migrations"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx. Repositories
// are bound to a DBTX so the same code runs inside and outside a
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the PostgreSQL-backed schoolauth.Store.
type Store struct {
	db   *sql.DB
	dbtx DBTX

	users    *userRepo
	sessions *sessionRepo
	otps     *resetOTPRepo
	tokens   *resetTokenRepo
}

// Open connects to the database and returns a ready Store. The caller owns
// the returned *sql.DB lifetime through Store.Close.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewStore(db), nil
}

// NewStore wraps an existing connection pool.
func NewStore(db *sql.DB) *Store {
	return newStore(db, db)
}

func newStore(db *sql.DB, dbtx DBTX) *Store {
	return &Store{
		db:       db,
		dbtx:     dbtx,
		users:    &userRepo{db: dbtx},
		sessions: &sessionRepo{db: dbtx},
		otps:     &resetOTPRepo{db: dbtx},
		tokens:   &resetTokenRepo{db: dbtx},
	}
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, ".")
}

// Close releases the underlying pool. A tx-bound view has no pool and
// closing it is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Users() schoolauth.UserStore             { return s.users }
func (s *Store) Sessions() schoolauth.SessionStore       { return s.sessions }
func (s *Store) ResetOTPs() schoolauth.ResetOTPStore     { return s.otps }
func (s *Store) ResetTokens() schoolauth.ResetTokenStore { return s.tokens }

// InTx runs fn against a Store view bound to one transaction. Any error
// from fn rolls the transaction back and is returned as is. Nested calls
// are not supported; a tx-bound view calling InTx again returns an error.
func (s *Store) InTx(ctx context.Context, fn func(schoolauth.Store) error) error {
	if s.db == nil {
		return fmt.Errorf("nested transaction not supported")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(newStore(nil, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
