package app

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"lodging_agent/internal/adapters/observability"
	"lodging_agent/internal/domain"
)

// RKBookingConfirmed is the routing key of the post-commit booking event.
const RKBookingConfirmed = "booking.confirmed"

// MailNotifier sends the confirmation email inline, on the request path.
type MailNotifier struct {
	mailer domain.Mailer
}

func NewMailNotifier(m domain.Mailer) *MailNotifier { return &MailNotifier{mailer: m} }

func (n *MailNotifier) BookingConfirmed(ctx context.Context, b domain.BookingNotice) error {
	err := n.mailer.SendBookingConfirmation(ctx, b)
	observability.ObserveNotification("sync", resultLabel(err))
	return err
}

// QueueNotifier hands the notice to the broker; NotificationWorker delivers it.
type QueueNotifier struct {
	pub domain.EventPublisher
}

func NewQueueNotifier(p domain.EventPublisher) *QueueNotifier { return &QueueNotifier{pub: p} }

func (n *QueueNotifier) BookingConfirmed(ctx context.Context, b domain.BookingNotice) error {
	err := n.pub.PublishJSON(ctx, RKBookingConfirmed, b)
	observability.ObserveNotification("queue", resultLabel(err))
	if err != nil {
		return fmt.Errorf("publish %s: %w", RKBookingConfirmed, err)
	}
	return nil
}

// NotificationWorker consumes booking.confirmed events and sends the email,
// retrying failed sends with exponential backoff.
type NotificationWorker struct {
	mailer      domain.Mailer
	maxAttempts int
	backoff     func(attempt int) time.Duration
}

func NewNotificationWorker(m domain.Mailer, maxAttempts int) *NotificationWorker {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &NotificationWorker{mailer: m, maxAttempts: maxAttempts, backoff: backoff}
}

// WithBackoff replaces the retry delay schedule.
func (w *NotificationWorker) WithBackoff(fn func(attempt int) time.Duration) *NotificationWorker {
	w.backoff = fn
	return w
}

// Handle processes one event body. A decode error is returned immediately;
// send errors are retried up to maxAttempts before being returned.
func (w *NotificationWorker) Handle(ctx context.Context, body []byte) error {
	var n domain.BookingNotice
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("decode %s payload: %w", RKBookingConfirmed, err)
	}

	var lastErr error
	for i := 0; i < w.maxAttempts; i++ {
		lastErr = w.mailer.SendBookingConfirmation(ctx, n)
		if lastErr == nil {
			observability.ObserveNotification("worker", "ok")
			log.Info().Str("code", n.ConfirmationCode).Int("attempt", i+1).Msg("confirmation email sent")
			return nil
		}
		log.Warn().Err(lastErr).Str("code", n.ConfirmationCode).Int("attempt", i+1).Msg("confirmation email failed")
		if i < w.maxAttempts-1 && !sleepCtx(ctx, w.backoff(i)) {
			break
		}
	}
	observability.ObserveNotification("worker", "error")
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return lastErr
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// sleepCtx waits for d or returns false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff doubles from 500ms per attempt and adds up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 500 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
