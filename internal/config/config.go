package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Gateway is one payment gateway integration. Each integration agrees its
// own token hash algorithm with the provider.
type Gateway struct {
	Name          string `env:"NAME"`
	MerchantID    string `env:"MERCHANT_ID"`
	AccountID     string `env:"ACCOUNT_ID"`
	APIKey        string `env:"API_KEY"`
	HashAlgorithm string `env:"HASH" envDefault:"sha256"`
	CheckoutURL   string `env:"CHECKOUT_URL"`
	OrderURL      string `env:"ORDER_URL"`
	Currency      string `env:"CURRENCY" envDefault:"COP"`
	Test          bool   `env:"TEST" envDefault:"false"`
}

func (g Gateway) Enabled() bool {
	return g.Name != "" && g.APIKey != "" && g.MerchantID != ""
}

type Config struct {
	// Core
	BotToken    string `env:"BOT_TOKEN,required"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Payment gateways
	Gateway          Gateway `envPrefix:"GATEWAY_"`
	SecondaryGateway Gateway `envPrefix:"GATEWAY2_"`

	// Admin
	AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`

	// Server
	Port    int    `env:"PORT" envDefault:"3000"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:3000"`

	// Billing
	Timezone         string        `env:"TIMEZONE" envDefault:"America/Bogota"`
	SweepSchedule    string        `env:"SWEEP_SCHEDULE" envDefault:"15 0 * * *"`
	ReminderSchedule string        `env:"REMINDER_SCHEDULE" envDefault:"0 9 * * *"`
	SweepWorkers     int           `env:"SWEEP_WORKERS" envDefault:"8"`
	PolicyCacheTTL   time.Duration `env:"POLICY_CACHE_TTL" envDefault:"1m"`

	// Bot behavior
	DropPendingUpdates bool `env:"BOT_DROP_PENDING_UPDATES" envDefault:"false"`

	// Telegram logging
	LogTelegramChatID int64 `env:"LOG_TELEGRAM_CHAT_ID"`
	LogTopicError     int   `env:"LOG_TOPIC_ERROR"`
	LogTopicPayment   int   `env:"LOG_TOPIC_PAYMENT"`
	LogTopicSweep     int   `env:"LOG_TOPIC_SWEEP"`
	LogTopicPolicy    int   `env:"LOG_TOPIC_POLICY"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Gateway.Name == "" {
		cfg.Gateway.Name = DefaultGatewayName
	}
	if cfg.SweepWorkers < 1 {
		cfg.SweepWorkers = 1
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location is the timezone civil billing dates are evaluated in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Gateways returns the enabled gateway integrations.
func (c *Config) Gateways() []Gateway {
	var out []Gateway
	for _, g := range []Gateway{c.Gateway, c.SecondaryGateway} {
		if g.Enabled() {
			out = append(out, g)
		}
	}
	return out
}

func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func (c *Config) AdminIDsString() string {
	parts := make([]string, len(c.AdminIDs))
	for i, id := range c.AdminIDs {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}

// WebhookURL is the confirmation URL a gateway posts notifications to.
func (c *Config) WebhookURL(gateway string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/webhooks/" + gateway
}

// ResponseURL is where the customer's browser returns after checkout.
func (c *Config) ResponseURL(reference string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/checkout/" + reference
}
