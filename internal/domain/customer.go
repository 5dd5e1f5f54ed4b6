package domain

import "time"

type Customer struct {
	ID             int64
	Name           string
	Email          string
	TelegramChatID *int64
	IsAdmin        bool
	CreatedAt      time.Time
}

func (c *Customer) HasTelegram() bool {
	return c.TelegramChatID != nil && *c.TelegramChatID != 0
}
