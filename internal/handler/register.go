package handler

import (
	"github.com/go-telegram/bot"
)

// Register binds all commands and callbacks to the bot.
func (h *Handler) Register() {
	// Commands
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.handleStart)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, h.handleStart)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/invoice", bot.MatchTypePrefix, h.handleInvoice)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/pay", bot.MatchTypePrefix, h.handlePay)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/membership", bot.MatchTypePrefix, h.handleMembership)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/subscribe", bot.MatchTypePrefix, h.handleSubscribe)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/donate", bot.MatchTypePrefix, h.handleDonate)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, h.handleStatus)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/consumption", bot.MatchTypePrefix, h.handleConsumption)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/report", bot.MatchTypePrefix, h.handleReport)

	// Admin commands
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/policy", bot.MatchTypeExact, h.handlePolicy)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/setpolicy", bot.MatchTypePrefix, h.handleSetPolicy)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/sweep", bot.MatchTypePrefix, h.handleSweep)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/issue", bot.MatchTypePrefix, h.handleIssue)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/markpaid", bot.MatchTypePrefix, h.handleMarkPaid)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/amend", bot.MatchTypePrefix, h.handleAmend)

	// Invoice callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "inv_", bot.MatchTypePrefix, h.handleInvoicePage)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "payinv_", bot.MatchTypePrefix, h.handlePayInvoiceCallback)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "cur", bot.MatchTypeExact, h.handleNoop)

	// Checkout callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "plan_", bot.MatchTypePrefix, h.handlePlanCallback)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "donate_", bot.MatchTypePrefix, h.handleDonateCallback)
}
