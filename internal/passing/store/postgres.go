package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"everkeep/internal/passing/models"
	id "everkeep/pkg/domain"
	"everkeep/pkg/platform/sentinel"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const uniqueViolation = "23505"

func (s *Postgres) CreateContact(ctx context.Context, contact *models.TrustedContact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trusted_contacts (id, owner_id, name, email, phone, verified)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, contact.ID.String(), contact.OwnerID.String(),
		contact.Name, contact.Email, contact.Phone, contact.Verified)
	if err != nil {
		return fmt.Errorf("insert trusted contact: %w", err)
	}
	return nil
}

func (s *Postgres) FindContactByID(ctx context.Context, contactID id.ContactID) (*models.TrustedContact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, email, phone, verified
		FROM trusted_contacts WHERE id = $1
	`, contactID.String())
	contact, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select trusted contact: %w", err)
	}
	return contact, nil
}

func (s *Postgres) ListContactsByOwner(ctx context.Context, ownerID id.UserID) ([]*models.TrustedContact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, email, phone, verified
		FROM trusted_contacts WHERE owner_id = $1
		ORDER BY name
	`, ownerID.String())
	if err != nil {
		return nil, fmt.Errorf("select trusted contacts: %w", err)
	}
	defer rows.Close()

	var out []*models.TrustedContact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trusted contact: %w", err)
		}
		out = append(out, contact)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateContact(ctx context.Context, contact *models.TrustedContact) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE trusted_contacts
		SET name = $2, email = $3, phone = $4
		WHERE id = $1
	`, contact.ID.String(), contact.Name, contact.Email, contact.Phone)
	if err != nil {
		return fmt.Errorf("update trusted contact: %w", err)
	}
	return requireAffected(result, "update trusted contact")
}

func (s *Postgres) DeleteContact(ctx context.Context, contactID id.ContactID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete trusted contact: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM passing_attestations WHERE trusted_contact_id = $1`, contactID.String()); err != nil {
		return fmt.Errorf("delete contact attestations: %w", err)
	}
	result, err := tx.ExecContext(ctx,
		`DELETE FROM trusted_contacts WHERE id = $1`, contactID.String())
	if err != nil {
		return fmt.Errorf("delete trusted contact: %w", err)
	}
	if err := requireAffected(result, "delete trusted contact"); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Postgres) MarkContactVerified(ctx context.Context, contactID id.ContactID) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE trusted_contacts
		SET verified = TRUE
		WHERE id = $1 AND verified = FALSE
	`, contactID.String())
	if err != nil {
		return fmt.Errorf("verify trusted contact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify trusted contact rows: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM trusted_contacts WHERE id = $1)`, contactID.String()).Scan(&exists); err != nil {
			return fmt.Errorf("verify trusted contact recheck: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *Postgres) CountVerifiedContacts(ctx context.Context, ownerID id.UserID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trusted_contacts
		WHERE owner_id = $1 AND verified = TRUE
	`, ownerID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count verified contacts: %w", err)
	}
	return count, nil
}

func (s *Postgres) CreateAttestation(ctx context.Context, attestation *models.PassingAttestation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO passing_attestations (id, owner_user_id, trusted_contact_id, attested_at)
		VALUES ($1, $2, $3, $4)
	`, attestation.ID.String(), attestation.OwnerID.String(),
		attestation.ContactID.String(), attestation.AttestedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert attestation: %w", err)
	}
	return nil
}

func (s *Postgres) CountAttestations(ctx context.Context, ownerID id.UserID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM passing_attestations WHERE owner_user_id = $1
	`, ownerID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count attestations: %w", err)
	}
	return count, nil
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

func scanContact(row scanner) (*models.TrustedContact, error) {
	var (
		contact         models.TrustedContact
		rawID, rawOwner string
		phone           sql.NullString
	)
	err := row.Scan(&rawID, &rawOwner, &contact.Name, &contact.Email, &phone, &contact.Verified)
	if err != nil {
		return nil, err
	}
	contactID, err := id.ParseContactID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored contact id invalid: %w", err)
	}
	ownerID, err := id.ParseUserID(rawOwner)
	if err != nil {
		return nil, fmt.Errorf("stored contact owner id invalid: %w", err)
	}
	contact.ID = contactID
	contact.OwnerID = ownerID
	contact.Phone = phone.String
	return &contact, nil
}
