// Package dispatch is the delivery dispatcher: a periodic loop that scans for
// due messages, notifies their recipients, and walks each fully-notified
// message into the terminal delivered state.
//
// The delivered flag on each message-recipient link is the de-duplication
// key: marking it is a guarded update, so a run that crashes mid-way, or two
// runs overlapping during a deploy, can never double-notify a recipient.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	authmodels "everkeep/internal/auth/models"
	"everkeep/internal/message/models"
	"everkeep/internal/platform/metrics"
	redisplatform "everkeep/internal/platform/redis"
	recipientmodels "everkeep/internal/recipient/models"
	id "everkeep/pkg/domain"
	audit "everkeep/pkg/platform/audit"
	"everkeep/pkg/platform/sentinel"
)

// notifyConcurrency bounds the in-flight notifications per run.
const notifyConcurrency = 8

// Clock is injected so tests control "now".
type Clock func() time.Time

// DueLister supplies the due-message query; backed by the lifecycle engine.
type DueLister interface {
	DueForDelivery(ctx context.Context, now time.Time) ([]*models.Message, error)
}

// LinkStore is the slice of the message store the dispatcher writes through.
type LinkStore interface {
	ListLinks(ctx context.Context, messageID id.MessageID) ([]*models.MessageRecipient, error)
	MarkLinkDelivered(ctx context.Context, linkID id.LinkID) error
	MarkDelivered(ctx context.Context, messageID id.MessageID, expectedLastUpdated time.Time, now time.Time) error
}

// RecipientFinder resolves the contact details a notification is sent to.
type RecipientFinder interface {
	FindByID(ctx context.Context, recipientID id.RecipientID) (*recipientmodels.Recipient, error)
}

// SenderFinder resolves the message owner for non-anonymous notifications.
type SenderFinder interface {
	FindByID(ctx context.Context, userID id.UserID) (*authmodels.User, error)
}

// Opener decrypts message content for preview-enabled notifications.
type Opener interface {
	Open(ciphertext string, keyMaterial string) (string, error)
}

// Lease serializes dispatcher runs across instances. Implemented on redis;
// nil means unguarded single-instance operation.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

type Dispatcher struct {
	due          DueLister
	links        LinkStore
	recipients   RecipientFinder
	users        SenderFinder
	opener       Opener
	notifier     Notifier
	audit        audit.Publisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	clock        Clock
	lease        Lease
	interval     time.Duration
	storeTimeout time.Duration
}

func New(due DueLister, links LinkStore, recipients RecipientFinder, users SenderFinder,
	opener Opener, notifier Notifier, auditor audit.Publisher, m *metrics.Metrics,
	logger *slog.Logger, clock Clock, lease Lease, interval, storeTimeout time.Duration) *Dispatcher {
	if clock == nil {
		clock = time.Now
	}
	if auditor == nil {
		auditor = nopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if storeTimeout <= 0 {
		storeTimeout = 10 * time.Second
	}
	return &Dispatcher{
		due:          due,
		links:        links,
		recipients:   recipients,
		users:        users,
		opener:       opener,
		notifier:     notifier,
		audit:        auditor,
		metrics:      m,
		logger:       logger,
		tracer:       otel.Tracer("everkeep/dispatch"),
		clock:        clock,
		lease:        lease,
		interval:     interval,
		storeTimeout: storeTimeout,
	}
}

type nopPublisher struct{}

func (nopPublisher) Emit(context.Context, audit.Event) error { return nil }

// Run polls on the configured interval until the context is cancelled. The
// current run finishes before shutdown completes; no new work starts after
// cancellation.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", "interval", d.interval.String())
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	// Background runs have no request deadline of their own; without this a
	// wedged store would stall the loop indefinitely.
	ctx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	defer cancel()

	if d.lease != nil {
		acquired, err := d.lease.Acquire(ctx, d.interval)
		if err != nil {
			d.logger.Error("dispatch lease acquire failed", "error", err)
			return
		}
		if !acquired {
			return
		}
		defer func() {
			if err := d.lease.Release(ctx); err != nil {
				d.logger.Warn("dispatch lease release failed", "error", err)
			}
		}()
	}

	report, err := d.RunOnce(ctx, d.clock())
	if err != nil {
		d.logger.Error("dispatch run failed", "error", err)
		return
	}
	if report.DueMessages > 0 || len(report.Failures) > 0 {
		d.logger.Info("dispatch run complete",
			"due", report.DueMessages,
			"notified", report.Notified,
			"delivered", report.MessagesDelivered,
			"failures", len(report.Failures))
	}
}

// RunOnce processes every due message exactly once. Notify failures are
// collected into the report and left for the next run; they never abort the
// remaining work.
func (d *Dispatcher) RunOnce(ctx context.Context, now time.Time) (*DeliveryReport, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.run_once")
	defer span.End()

	started := time.Now()
	if d.metrics != nil {
		d.metrics.DispatchRuns.Inc()
		defer func() {
			d.metrics.DispatchDuration.Observe(time.Since(started).Seconds())
		}()
	}

	due, err := d.due.DueForDelivery(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due messages: %w", err)
	}

	report := &DeliveryReport{DueMessages: len(due)}
	for _, message := range due {
		d.processMessage(ctx, message, now, report)
	}

	span.SetAttributes(
		attribute.Int("dispatch.due", report.DueMessages),
		attribute.Int("dispatch.notified", report.Notified),
		attribute.Int("dispatch.failures", len(report.Failures)),
	)
	return report, nil
}

func (d *Dispatcher) processMessage(ctx context.Context, message *models.Message, now time.Time, report *DeliveryReport) {
	links, err := d.links.ListLinks(ctx, message.ID)
	if err != nil {
		report.Failures = append(report.Failures, DeliveryFailure{MessageID: message.ID, Err: err})
		return
	}

	var pending []*models.MessageRecipient
	for _, link := range links {
		if !link.Delivered {
			pending = append(pending, link)
		}
	}

	if len(pending) > 0 {
		// Decrypt at most once per message, and only when a preview may
		// leave the service at all.
		preview := ""
		if message.NotifyPreview {
			preview, err = d.opener.Open(message.Content, message.ContentKey)
			if err != nil {
				d.logger.Error("content failed integrity check, delivery withheld",
					"message_id", message.ID.String(), "error", err)
				report.Failures = append(report.Failures, DeliveryFailure{MessageID: message.ID, Err: err})
				return
			}
		}
		sender := d.senderName(ctx, message)
		d.notifyPending(ctx, message, pending, sender, preview, now, report)
	}

	d.finalize(ctx, message, now, report)
}

// notifyPending fans the pending links out over a bounded worker group. Each
// link succeeds or fails independently.
func (d *Dispatcher) notifyPending(ctx context.Context, message *models.Message,
	pending []*models.MessageRecipient, sender, preview string, now time.Time, report *DeliveryReport) {
	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(notifyConcurrency)

	for _, link := range pending {
		group.Go(func() error {
			err := d.notifyOne(groupCtx, message, link, sender, preview, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if d.metrics != nil {
					d.metrics.NotifyFailures.Inc()
				}
				report.Failures = append(report.Failures, DeliveryFailure{
					MessageID:   message.ID,
					RecipientID: link.RecipientID,
					Err:         err,
				})
				return nil
			}
			report.Notified++
			return nil
		})
	}
	_ = group.Wait()
}

func (d *Dispatcher) notifyOne(ctx context.Context, message *models.Message,
	link *models.MessageRecipient, sender, preview string, now time.Time) error {
	recipient, err := d.recipients.FindByID(ctx, link.RecipientID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}

	err = d.notifier.Notify(ctx, Notification{
		MessageID:      message.ID,
		MessageTitle:   message.Title,
		MessageType:    string(message.Type),
		RecipientName:  recipient.Name,
		RecipientEmail: recipient.Email,
		RecipientPhone: recipient.Phone,
		SenderName:     sender,
		Preview:        preview,
	})
	if err != nil {
		_ = d.audit.Emit(ctx, audit.Event{
			Timestamp: now,
			UserID:    message.OwnerID,
			Subject:   message.ID.String(),
			Action:    audit.EventNotifyFailed,
			Reason:    err.Error(),
			ActorID:   "dispatcher",
		})
		return fmt.Errorf("notify recipient: %w", err)
	}

	if err := d.links.MarkLinkDelivered(ctx, link.ID); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// A concurrent run got there first; its mark stands.
			return nil
		}
		return fmt.Errorf("mark link delivered: %w", err)
	}

	_ = d.audit.Emit(ctx, audit.Event{
		Timestamp: now,
		UserID:    message.OwnerID,
		Subject:   message.ID.String(),
		Action:    audit.EventRecipientNotified,
		Decision:  link.RecipientID.String(),
		ActorID:   "dispatcher",
	})
	return nil
}

// finalize moves the message to delivered once every link has been. A lost
// compare-and-swap or an already-delivered status means someone else
// finished the job, which is fine.
func (d *Dispatcher) finalize(ctx context.Context, message *models.Message, now time.Time, report *DeliveryReport) {
	links, err := d.links.ListLinks(ctx, message.ID)
	if err != nil {
		report.Failures = append(report.Failures, DeliveryFailure{MessageID: message.ID, Err: err})
		return
	}
	for _, link := range links {
		if !link.Delivered {
			return
		}
	}

	err = d.links.MarkDelivered(ctx, message.ID, message.LastUpdated, now)
	switch {
	case err == nil:
		report.MessagesDelivered++
		if d.metrics != nil {
			d.metrics.MessagesDelivered.Inc()
		}
		_ = d.audit.Emit(ctx, audit.Event{
			Timestamp: now,
			UserID:    message.OwnerID,
			Subject:   message.ID.String(),
			Action:    audit.EventMessageDelivered,
			ActorID:   "dispatcher",
		})
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrInvalidState):
		// Concurrent edit or a parallel run's finalize; next run reconciles.
	default:
		report.Failures = append(report.Failures, DeliveryFailure{MessageID: message.ID, Err: err})
	}
}

func (d *Dispatcher) senderName(ctx context.Context, message *models.Message) string {
	if message.NotifyAnonymous {
		return ""
	}
	owner, err := d.users.FindByID(ctx, message.OwnerID)
	if err != nil {
		d.logger.Warn("could not resolve sender, notifying without name",
			"message_id", message.ID.String(), "error", err)
		return ""
	}
	name := strings.TrimSpace(owner.FirstName + " " + owner.LastName)
	if name == "" {
		name = owner.Username
	}
	return name
}

// leaseKey is shared by every instance of the service.
const leaseKey = "everkeep:dispatch:lease"

// releaseScript deletes the lease only if this instance still holds it.
var releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// RedisLease implements Lease on a redis SETNX key with a TTL, so a crashed
// holder frees the lease by expiry.
type RedisLease struct {
	client *redisplatform.Client
	token  string
}

func NewRedisLease(client *redisplatform.Client, token string) *RedisLease {
	return &RedisLease{client: client, token: token}
}

func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, leaseKey, l.token, ttl).Result()
}

func (l *RedisLease) Release(ctx context.Context) error {
	return l.client.Eval(ctx, releaseScript, []string{leaseKey}, l.token).Err()
}
