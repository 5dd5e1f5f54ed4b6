package domain

import "time"

type NotificationKind string

const (
	NotificationReminder    NotificationKind = "reminder"
	NotificationBenefit     NotificationKind = "benefit"
	NotificationAchievement NotificationKind = "achievement"
	NotificationPayment     NotificationKind = "payment"
	NotificationSystem      NotificationKind = "system"
	NotificationConsumption NotificationKind = "consumption"
)

// NotificationPayload is the user-facing content of one message.
type NotificationPayload struct {
	Title   string
	Message string
	Data    map[string]string
}

type Notification struct {
	ID          string
	CustomerID  int64
	Kind        NotificationKind
	Title       string
	Message     string
	Data        map[string]string
	CreatedAt   time.Time
	DeliveredAt *time.Time
}
