package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/acueducto/internal/billing"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/metrics"
	"github.com/set-night/acueducto/internal/repository"
)

// Dispatcher sends customer notifications. Send never fails the caller.
type Dispatcher interface {
	Send(ctx context.Context, customerID int64, kind domain.NotificationKind, payload domain.NotificationPayload)
}

// Deliverer pushes one notification to a chat.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, n domain.Notification) error
}

type Notifier struct {
	store     repository.Querier
	deliverer Deliverer
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewNotifier(store repository.Querier, deliverer Deliverer, m *metrics.Metrics) *Notifier {
	return &Notifier{store: store, deliverer: deliverer, metrics: m, now: time.Now}
}

func (n *Notifier) Send(ctx context.Context, customerID int64, kind domain.NotificationKind, payload domain.NotificationPayload) {
	note := domain.Notification{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Kind:       kind,
		Title:      payload.Title,
		Message:    payload.Message,
		Data:       payload.Data,
		CreatedAt:  n.now(),
	}

	if err := n.store.InsertNotification(ctx, note); err != nil {
		slog.Error("failed to store notification", "customer_id", customerID, "kind", kind, "error", err)
		n.count(kind, "store_failed")
		return
	}

	if n.deliverer == nil {
		n.count(kind, "stored")
		return
	}

	customer, err := n.store.GetCustomer(ctx, customerID)
	if err != nil {
		slog.Error("failed to load notification recipient", "customer_id", customerID, "error", err)
		n.count(kind, "stored")
		return
	}
	if !customer.HasTelegram() {
		n.count(kind, "stored")
		return
	}

	if err := n.deliverer.Deliver(ctx, *customer.TelegramChatID, note); err != nil {
		slog.Error("failed to deliver notification", "customer_id", customerID, "kind", kind, "error", err)
		n.count(kind, "delivery_failed")
		return
	}
	if err := n.store.MarkNotificationDelivered(ctx, note.ID, n.now()); err != nil {
		slog.Warn("failed to mark notification delivered", "id", note.ID, "error", err)
	}
	n.count(kind, "delivered")
}

func (n *Notifier) count(kind domain.NotificationKind, result string) {
	if n.metrics != nil {
		n.metrics.NotificationsTotal.WithLabelValues(string(kind), result).Inc()
	}
}

// dispatchEffects runs transition effects. Call only after commit.
func dispatchEffects(ctx context.Context, d Dispatcher, p domain.Policy, effects []billing.Effect) {
	if d == nil {
		return
	}
	for _, e := range effects {
		if !p.Notifies(e.Kind) {
			continue
		}
		d.Send(ctx, e.CustomerID, e.Kind, e.Payload)
	}
}
