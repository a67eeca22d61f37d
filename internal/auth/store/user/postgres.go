package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"everkeep/internal/auth/models"
	id "everkeep/pkg/domain"
	"everkeep/pkg/platform/sentinel"
)

// Postgres persists users in the users table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const uniqueViolation = "23505"

func (s *Postgres) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, first_name, last_name, deceased, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID.String(), user.Username, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.Deceased, user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.scanOne(ctx, `
		SELECT id, username, email, password_hash, first_name, last_name,
		       deceased, deceased_confirmed_at, created_at
		FROM users WHERE id = $1
	`, userID.String())
}

func (s *Postgres) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.scanOne(ctx, `
		SELECT id, username, email, password_hash, first_name, last_name,
		       deceased, deceased_confirmed_at, created_at
		FROM users WHERE lower(username) = lower($1)
	`, username)
}

func (s *Postgres) scanOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var (
		user        models.User
		rawID       string
		confirmedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&rawID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.Deceased, &confirmedAt, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	parsed, err := id.ParseUserID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored user id invalid: %w", err)
	}
	user.ID = parsed
	if confirmedAt.Valid {
		at := confirmedAt.Time
		user.DeceasedConfirmedAt = &at
	}
	return &user, nil
}

// MarkDeceased flips the flag with a guarded update so the transition is
// recorded exactly once regardless of concurrent quorum recomputations.
func (s *Postgres) MarkDeceased(ctx context.Context, userID id.UserID, confirmedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET deceased = TRUE, deceased_confirmed_at = $2
		WHERE id = $1 AND deceased = FALSE
	`, userID.String(), confirmedAt)
	if err != nil {
		return fmt.Errorf("mark deceased: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark deceased rows: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID.String()).Scan(&exists); err != nil {
			return fmt.Errorf("mark deceased recheck: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrAlreadyUsed
	}
	return nil
}
