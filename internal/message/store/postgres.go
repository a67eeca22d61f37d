package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"everkeep/internal/message/models"
	id "everkeep/pkg/domain"
	"everkeep/pkg/platform/sentinel"
)

// Postgres persists messages and their recipient links. Create, Update and
// Delete run in a single transaction so the message and its link set never
// diverge.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const uniqueViolation = "23505"

const messageColumns = `
	id, owner_id, title, content, content_key, type, status,
	delivery_type, delivery_date, notify_anonymous, notify_preview, last_updated
`

func (s *Postgres) Create(ctx context.Context, message *models.Message, links []*models.MessageRecipient) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create message: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, message.ID.String(), message.OwnerID.String(), message.Title,
		message.Content, message.ContentKey, string(message.Type), string(message.Status),
		string(message.DeliveryType), message.DeliveryDate,
		message.NotifyAnonymous, message.NotifyPreview, message.LastUpdated)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert message: %w", err)
	}

	if err := insertLinks(ctx, tx, links); err != nil {
		return err
	}
	return tx.Commit()
}

// insertLinks writes the whole link set in one statement; the arrays are
// unnested positionally so each row keeps its own id/recipient pairing.
func insertLinks(ctx context.Context, tx *sql.Tx, links []*models.MessageRecipient) error {
	if len(links) == 0 {
		return nil
	}

	linkIDs := make([]string, len(links))
	messageIDs := make([]string, len(links))
	recipientIDs := make([]string, len(links))
	for i, link := range links {
		linkIDs[i] = link.ID.String()
		messageIDs[i] = link.MessageID.String()
		recipientIDs[i] = link.RecipientID.String()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO message_recipients (id, message_id, recipient_id, notification_sent, delivered)
		SELECT id, message_id, recipient_id, FALSE, FALSE
		FROM unnest($1::uuid[], $2::uuid[], $3::uuid[]) AS t (id, message_id, recipient_id)
	`, pq.Array(linkIDs), pq.Array(messageIDs), pq.Array(recipientIDs))
	if err != nil {
		return fmt.Errorf("insert message links: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, messageID id.MessageID) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = $1
	`, messageID.String())
	message, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select message: %w", err)
	}
	return message, nil
}

func (s *Postgres) ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Message, error) {
	return s.list(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE owner_id = $1
		ORDER BY last_updated DESC
	`, ownerID.String())
}

func (s *Postgres) Update(ctx context.Context, message *models.Message, links []*models.MessageRecipient, expectedLastUpdated time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update message: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx, `
		UPDATE messages
		SET title = $2, content = $3, content_key = $4, type = $5, status = $6,
		    delivery_type = $7, delivery_date = $8,
		    notify_anonymous = $9, notify_preview = $10, last_updated = $11
		WHERE id = $1 AND last_updated = $12
	`, message.ID.String(), message.Title, message.Content, message.ContentKey,
		string(message.Type), string(message.Status), string(message.DeliveryType),
		message.DeliveryDate, message.NotifyAnonymous, message.NotifyPreview,
		message.LastUpdated, expectedLastUpdated)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if err := s.requireCASHit(ctx, tx, result, message.ID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM message_recipients WHERE message_id = $1`, message.ID.String()); err != nil {
		return fmt.Errorf("replace message links: %w", err)
	}
	if err := insertLinks(ctx, tx, links); err != nil {
		return err
	}
	return tx.Commit()
}

// requireCASHit distinguishes a lost compare-and-swap from a vanished row
// when the guarded update touched nothing.
func (s *Postgres) requireCASHit(ctx context.Context, tx *sql.Tx, result sql.Result, messageID id.MessageID) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update message rows: %w", err)
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, messageID.String()).Scan(&exists); err != nil {
		return fmt.Errorf("update message recheck: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func (s *Postgres) Delete(ctx context.Context, messageID id.MessageID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete message: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM message_recipients WHERE message_id = $1`, messageID.String()); err != nil {
		return fmt.Errorf("delete message links: %w", err)
	}
	result, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE id = $1`, messageID.String())
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message rows: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return tx.Commit()
}

func (s *Postgres) ListLinks(ctx context.Context, messageID id.MessageID) ([]*models.MessageRecipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, recipient_id, notification_sent, delivered
		FROM message_recipients
		WHERE message_id = $1
		ORDER BY id
	`, messageID.String())
	if err != nil {
		return nil, fmt.Errorf("select message links: %w", err)
	}
	defer rows.Close()

	var out []*models.MessageRecipient
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

func (s *Postgres) MarkLinkDelivered(ctx context.Context, linkID id.LinkID) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE message_recipients
		SET notification_sent = TRUE, delivered = TRUE
		WHERE id = $1 AND delivered = FALSE
	`, linkID.String())
	if err != nil {
		return fmt.Errorf("mark link delivered: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark link delivered rows: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM message_recipients WHERE id = $1)`, linkID.String()).Scan(&exists); err != nil {
			return fmt.Errorf("mark link delivered recheck: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *Postgres) MarkDelivered(ctx context.Context, messageID id.MessageID, expectedLastUpdated time.Time, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'delivered', last_updated = $3
		WHERE id = $1 AND last_updated = $2 AND status = 'scheduled'
	`, messageID.String(), expectedLastUpdated, now)
	if err != nil {
		return fmt.Errorf("mark message delivered: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark message delivered rows: %w", err)
	}
	if affected == 0 {
		var status sql.NullString
		err := s.db.QueryRowContext(ctx,
			`SELECT status FROM messages WHERE id = $1`, messageID.String()).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("mark message delivered recheck: %w", err)
		}
		if status.String != string(models.StatusScheduled) {
			return sentinel.ErrInvalidState
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Postgres) ListDueByDate(ctx context.Context, now time.Time) ([]*models.Message, error) {
	return s.list(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE status = 'scheduled' AND delivery_type = 'date' AND delivery_date <= $1
	`, now)
}

func (s *Postgres) ListScheduledPassing(ctx context.Context) ([]*models.Message, error) {
	return s.list(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE status = 'scheduled' AND delivery_type = 'passing'
	`)
}

func (s *Postgres) HasScheduledLinks(ctx context.Context, recipientID id.RecipientID) (bool, error) {
	var attached bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM message_recipients mr
			JOIN messages m ON m.id = mr.message_id
			WHERE mr.recipient_id = $1 AND m.status = 'scheduled'
		)
	`, recipientID.String()).Scan(&attached)
	if err != nil {
		return false, fmt.Errorf("check scheduled links: %w", err)
	}
	return attached, nil
}

func (s *Postgres) DeleteLinksByRecipient(ctx context.Context, recipientID id.RecipientID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM message_recipients WHERE recipient_id = $1`, recipientID.String()); err != nil {
		return fmt.Errorf("delete recipient links: %w", err)
	}
	return nil
}

func (s *Postgres) list(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, message)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*models.Message, error) {
	var (
		message         models.Message
		rawID, rawOwner string
		msgType, status string
		deliveryType    string
		deliveryDate    sql.NullTime
	)
	err := row.Scan(&rawID, &rawOwner, &message.Title, &message.Content, &message.ContentKey,
		&msgType, &status, &deliveryType, &deliveryDate,
		&message.NotifyAnonymous, &message.NotifyPreview, &message.LastUpdated)
	if err != nil {
		return nil, err
	}
	messageID, err := id.ParseMessageID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored message id invalid: %w", err)
	}
	ownerID, err := id.ParseUserID(rawOwner)
	if err != nil {
		return nil, fmt.Errorf("stored owner id invalid: %w", err)
	}
	message.ID = messageID
	message.OwnerID = ownerID
	message.Type = models.MessageType(msgType)
	message.Status = models.MessageStatus(status)
	message.DeliveryType = models.DeliveryType(deliveryType)
	if deliveryDate.Valid {
		at := deliveryDate.Time
		message.DeliveryDate = &at
	}
	return &message, nil
}

func scanLink(row scanner) (*models.MessageRecipient, error) {
	var (
		link                            models.MessageRecipient
		rawID, rawMessage, rawRecipient string
	)
	err := row.Scan(&rawID, &rawMessage, &rawRecipient, &link.NotificationSent, &link.Delivered)
	if err != nil {
		return nil, fmt.Errorf("scan message link: %w", err)
	}
	linkID, err := id.ParseLinkID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored link id invalid: %w", err)
	}
	messageID, err := id.ParseMessageID(rawMessage)
	if err != nil {
		return nil, fmt.Errorf("stored link message id invalid: %w", err)
	}
	recipientID, err := id.ParseRecipientID(rawRecipient)
	if err != nil {
		return nil, fmt.Errorf("stored link recipient id invalid: %w", err)
	}
	link.ID = linkID
	link.MessageID = messageID
	link.RecipientID = recipientID
	return &link, nil
}
