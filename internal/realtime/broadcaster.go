package realtime

import (
	"sync"

	"go.uber.org/zap"

	"github.com/lazynerd-007/lpv1-sub000/internal/models"
	"github.com/lazynerd-007/lpv1-sub000/pkg/logger"
	"github.com/lazynerd-007/lpv1-sub000/pkg/metrics"
)

const defaultFanoutConcurrency = 16

// Delivery pairs one recipient with the message to push.
type Delivery struct {
	UserID  string
	Message Message
}

// Broadcaster fans messages out to the live sessions of one or many users.
// Delivery is best-effort: offline users are skipped silently and dead
// sessions are deregistered without disturbing their siblings. Failures never
// propagate to the producer that created the notification.
type Broadcaster struct {
	registry    *Registry
	log         *zap.Logger
	concurrency int
}

// BroadcasterOption customises broadcaster behaviour.
type BroadcasterOption func(*Broadcaster)

// WithFanoutConcurrency bounds the number of users processed in parallel
// during bulk delivery, independent of the recipient count.
func WithFanoutConcurrency(n int) BroadcasterOption {
	return func(b *Broadcaster) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBroadcaster constructs a Broadcaster backed by the supplied registry.
func NewBroadcaster(registry *Registry, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		registry:    registry,
		log:         logger.WithModule("broadcaster"),
		concurrency: defaultFanoutConcurrency,
	}

	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Deliver pushes a message to every live session of one user. With no
// sessions registered it returns immediately; offline delivery is the
// expected common case, not a failure.
func (b *Broadcaster) Deliver(userID string, msg Message) {
	sessions := b.registry.SessionsFor(userID)
	if len(sessions) == 0 {
		metrics.LiveDeliveries.WithLabelValues("offline").Inc()
		return
	}

	for _, s := range sessions {
		if s.Send(msg) {
			metrics.LiveDeliveries.WithLabelValues("delivered").Inc()
		} else {
			// Send closes the dead session, which deregisters it.
			metrics.LiveDeliveries.WithLabelValues("dropped").Inc()
			b.log.Warn("dropped dead session during delivery", zap.String("user_id", userID))
		}
	}
}

// DeliverBulk pushes the same message to each of the supplied users with
// bounded concurrency. Per-user failures stay local to that user.
func (b *Broadcaster) DeliverBulk(userIDs []string, msg Message) {
	deliveries := make([]Delivery, 0, len(userIDs))
	for _, userID := range userIDs {
		deliveries = append(deliveries, Delivery{UserID: userID, Message: msg})
	}
	b.DeliverMany(deliveries)
}

// DeliverMany fans out per-recipient messages. In-flight work is capped by
// the configured concurrency regardless of how many recipients are supplied.
func (b *Broadcaster) DeliverMany(deliveries []Delivery) {
	if len(deliveries) == 0 {
		return
	}

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for _, d := range deliveries {
		if d.UserID == "" {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(d Delivery) {
			defer func() {
				<-sem
				wg.Done()
			}()
			b.Deliver(d.UserID, d.Message)
		}(d)
	}

	wg.Wait()
}

// BroadcastSystemAnnouncement pushes an operational announcement to every
// connected user. It intentionally bypasses per-kind preferences: system-wide
// messages offer no opt-out.
func (b *Broadcaster) BroadcastSystemAnnouncement(title, body string, data map[string]any) {
	userIDs := b.registry.ConnectedUserIDs()
	if len(userIDs) == 0 {
		return
	}

	msg := NotificationMessage(models.NotificationSystemAnnouncement, title, body, data, "")
	b.DeliverBulk(userIDs, msg)
}
