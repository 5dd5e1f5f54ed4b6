package billing

import "github.com/set-night/acueducto/internal/domain"

// Effect is a side effect requested by a transition. Callers run effects only
// after the new state has been committed.
type Effect struct {
	CustomerID int64
	Kind       domain.NotificationKind
	Payload    domain.NotificationPayload
}
