//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	authmodels "everkeep/internal/auth/models"
	userstore "everkeep/internal/auth/store/user"
	"everkeep/internal/message/models"
	messagestore "everkeep/internal/message/store"
	recipientmodels "everkeep/internal/recipient/models"
	recipientstore "everkeep/internal/recipient/store"
	id "everkeep/pkg/domain"
	"everkeep/pkg/platform/sentinel"
	"everkeep/pkg/testutil/containers"
)

func TestMessageStorePostgres(t *testing.T) {
	pg := containers.NewPostgresContainer(t, "../../../db/schema.sql")
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	users := userstore.NewPostgres(pg.DB)
	recipients := recipientstore.NewPostgres(pg.DB)
	messages := messagestore.NewPostgres(pg.DB)

	owner := &authmodels.User{
		ID:           id.NewUserID(),
		Username:     "inga",
		Email:        "inga@example.com",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    now,
	}
	require.NoError(t, users.Create(ctx, owner))

	recipient := &recipientmodels.Recipient{
		ID:      id.NewRecipientID(),
		OwnerID: owner.ID,
		Name:    "lena",
		Email:   "lena@example.com",
	}
	require.NoError(t, recipients.Create(ctx, recipient))

	message := &models.Message{
		ID:           id.NewMessageID(),
		OwnerID:      owner.ID,
		Title:        "for lena",
		Content:      "ciphertext",
		ContentKey:   "wrapped-key",
		Type:         models.TypeText,
		Status:       models.StatusScheduled,
		DeliveryType: models.DeliveryPassing,
		LastUpdated:  now,
	}
	link := &models.MessageRecipient{
		ID:          id.NewLinkID(),
		MessageID:   message.ID,
		RecipientID: recipient.ID,
	}

	t.Run("create persists message and links atomically", func(t *testing.T) {
		require.NoError(t, messages.Create(ctx, message, []*models.MessageRecipient{link}))

		found, err := messages.FindByID(ctx, message.ID)
		require.NoError(t, err)
		require.Equal(t, "for lena", found.Title)
		require.True(t, found.LastUpdated.Equal(now))

		links, err := messages.ListLinks(ctx, message.ID)
		require.NoError(t, err)
		require.Len(t, links, 1)
		require.Equal(t, recipient.ID, links[0].RecipientID)
	})

	t.Run("compare-and-swap update rejects stale tokens", func(t *testing.T) {
		updated := *message
		updated.Title = "revised"
		updated.LastUpdated = now.Add(time.Minute)
		require.NoError(t, messages.Update(ctx, &updated, []*models.MessageRecipient{link}, now))

		stale := *message
		stale.Title = "stale"
		err := messages.Update(ctx, &stale, []*models.MessageRecipient{link}, now)
		require.ErrorIs(t, err, sentinel.ErrConflict)

		message.LastUpdated = updated.LastUpdated
	})

	t.Run("guarded link delivery is exactly-once", func(t *testing.T) {
		require.NoError(t, messages.MarkLinkDelivered(ctx, link.ID))
		require.ErrorIs(t, messages.MarkLinkDelivered(ctx, link.ID), sentinel.ErrAlreadyUsed)
	})

	t.Run("scheduled passing query and delivered transition", func(t *testing.T) {
		due, err := messages.ListScheduledPassing(ctx)
		require.NoError(t, err)
		require.Len(t, due, 1)

		deliveredAt := now.Add(time.Hour)
		require.NoError(t, messages.MarkDelivered(ctx, message.ID, message.LastUpdated, deliveredAt))
		require.ErrorIs(t,
			messages.MarkDelivered(ctx, message.ID, deliveredAt, deliveredAt.Add(time.Minute)),
			sentinel.ErrInvalidState)
	})

	t.Run("recipient link guard sees no scheduled links after delivery", func(t *testing.T) {
		attached, err := messages.HasScheduledLinks(ctx, recipient.ID)
		require.NoError(t, err)
		require.False(t, attached)
	})
}
