package repository

import (
	"context"
	"time"

	"github.com/set-night/acueducto/internal/domain"
)

func (q *Queries) InsertNotification(ctx context.Context, n domain.Notification) error {
	data := n.Data
	if data == nil {
		data = map[string]string{}
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO notifications (id, customer_id, kind, title, message, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.CustomerID, string(n.Kind), n.Title, n.Message, data, n.CreatedAt)
	return dbError("insert notification", err, nil)
}

func (q *Queries) MarkNotificationDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.Exec(ctx, `UPDATE notifications SET delivered_at = $2 WHERE id = $1`, id, at)
	return dbError("mark notification delivered", err, nil)
}
