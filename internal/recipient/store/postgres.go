package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"everkeep/internal/recipient/models"
	id "everkeep/pkg/domain"
	"everkeep/pkg/platform/sentinel"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, recipient *models.Recipient) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipients (id, owner_id, name, email, phone, relationship)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, recipient.ID.String(), recipient.OwnerID.String(),
		recipient.Name, recipient.Email, recipient.Phone, recipient.Relationship)
	if err != nil {
		return fmt.Errorf("insert recipient: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, recipientID id.RecipientID) (*models.Recipient, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, email, phone, relationship
		FROM recipients WHERE id = $1
	`, recipientID.String())
	recipient, err := scanRecipient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select recipient: %w", err)
	}
	return recipient, nil
}

func (s *Postgres) ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, email, phone, relationship
		FROM recipients WHERE owner_id = $1
		ORDER BY name
	`, ownerID.String())
	if err != nil {
		return nil, fmt.Errorf("select recipients: %w", err)
	}
	defer rows.Close()

	var out []*models.Recipient
	for rows.Next() {
		recipient, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, recipient)
	}
	return out, rows.Err()
}

func (s *Postgres) Update(ctx context.Context, recipient *models.Recipient) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE recipients
		SET name = $2, email = $3, phone = $4, relationship = $5
		WHERE id = $1
	`, recipient.ID.String(), recipient.Name, recipient.Email,
		recipient.Phone, recipient.Relationship)
	if err != nil {
		return fmt.Errorf("update recipient: %w", err)
	}
	return requireAffected(result, "update recipient")
}

func (s *Postgres) Delete(ctx context.Context, recipientID id.RecipientID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM recipients WHERE id = $1`, recipientID.String())
	if err != nil {
		return fmt.Errorf("delete recipient: %w", err)
	}
	return requireAffected(result, "delete recipient")
}

func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecipient(row scanner) (*models.Recipient, error) {
	var (
		recipient           models.Recipient
		rawID, rawOwner     string
		phone, relationship sql.NullString
	)
	err := row.Scan(&rawID, &rawOwner, &recipient.Name, &recipient.Email, &phone, &relationship)
	if err != nil {
		return nil, err
	}
	recipientID, err := id.ParseRecipientID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored recipient id invalid: %w", err)
	}
	ownerID, err := id.ParseUserID(rawOwner)
	if err != nil {
		return nil, fmt.Errorf("stored recipient owner id invalid: %w", err)
	}
	recipient.ID = recipientID
	recipient.OwnerID = ownerID
	recipient.Phone = phone.String
	recipient.Relationship = relationship.String
	return &recipient, nil
}
