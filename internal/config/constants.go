package config

import "time"

const (
	DefaultGatewayName = "payu"
	DefaultCurrency    = "COP"

	// Minimum one-off or monthly donation, in DefaultCurrency
	MinDonationAmount = 1000

	// Outbound order creation
	OrderTimeout      = 15 * time.Second
	HTTPClientTimeout = 30 * time.Second

	// Scheduler leases and dedupe windows
	SweepLeaseTTL     = 10 * time.Minute
	ReminderLeaseTTL  = 10 * time.Minute
	ReminderDedupeTTL = 36 * time.Hour

	// One high-consumption alert per invoice
	ConsumptionAlertDedupeTTL = 60 * 24 * time.Hour
	// Invoices averaged by the consumption analysis
	ConsumptionHistory = 12

	// Membership windows are closed shortly after they lapse
	ExpirySchedule = "*/30 * * * *"
	ExpiryLeaseTTL = 5 * time.Minute

	// Recently settled references kept in memory
	SettledCacheSize = 4096

	// Active benefit definitions cache
	BenefitCacheTTL = 5 * time.Minute

	// Rate limits (per minute)
	RateLimitCustomer = 20
	RateLimitAdmin    = 60
	// Payment status lookups per client IP
	RateLimitCheckoutStatus = 30

	// Telegram limits
	MaxTelegramMessageLen = 4096

	// Invoices listed by /invoice without arguments
	InvoicesPerPage = 5

	// Server timeouts
	ReadHeaderTimeout = 5 * time.Second
	ShutdownTimeout   = 10 * time.Second
)

// DonationPresets are the quick-pick amounts offered by the bot.
var DonationPresets = []int{5000, 10000, 20000, 50000}
