package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/domain"
)

// OpsLogger mirrors operational events into topics of an operators' chat.
type OpsLogger struct {
	bot MessageSender
	cfg *config.Config
}

func NewOpsLogger(b MessageSender, cfg *config.Config) *OpsLogger {
	return &OpsLogger{bot: b, cfg: cfg}
}

type LogType string

const (
	LogTypeError   LogType = "error"
	LogTypePayment LogType = "payment"
	LogTypeSweep   LogType = "sweep"
	LogTypePolicy  LogType = "policy"
)

func (l *OpsLogger) Log(logType LogType, message string) {
	if l == nil || l.cfg.LogTelegramChatID == 0 {
		return
	}

	topicID := l.topicID(logType)
	if topicID == 0 {
		return
	}

	if len([]rune(message)) > config.MaxTelegramMessageLen {
		message = string([]rune(message)[:config.MaxTelegramMessageLen-20]) + "\n\n... (truncated)"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := l.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          l.cfg.LogTelegramChatID,
		Text:            message,
		ParseMode:       "Markdown",
		MessageThreadID: topicID,
	})
	if err != nil {
		slog.Error("failed to send telegram log", "type", logType, "error", err)
	}
}

func (l *OpsLogger) LogError(err error, context string) {
	msg := fmt.Sprintf("❌ *Error*\n\n*Context:* %s\n*Error:* `%s`\n*Time:* %s",
		context, err.Error(), time.Now().Format("2006-01-02 15:04:05"))
	l.Log(LogTypeError, msg)
}

func (l *OpsLogger) LogPayment(tx domain.PaymentTransaction) {
	msg := fmt.Sprintf("💧 *Payment %s*\n\n*Reference:* `%s`\n*Kind:* %s\n*Amount:* %s %s\n*Gateway:* %s",
		tx.Status, tx.ReferenceCode, tx.Kind, tx.Amount.String(), tx.Currency, tx.Gateway)
	if tx.InvoiceNumber != nil {
		msg += fmt.Sprintf("\n*Invoice:* %s", *tx.InvoiceNumber)
	}
	l.Log(LogTypePayment, msg)
}

// LogSweep posts a sweep summary. counts maps outcome names to totals.
func (l *OpsLogger) LogSweep(counts map[string]string, failures []string) {
	var sb strings.Builder
	sb.WriteString("🗓 *Aging sweep*\n")
	for _, k := range sortedKeys(counts) {
		fmt.Fprintf(&sb, "\n*%s:* %s", k, counts[k])
	}
	if len(failures) > 0 {
		sb.WriteString("\n\n*Failures:*")
		for _, f := range failures {
			sb.WriteString("\n• `" + f + "`")
		}
	}
	l.Log(LogTypeSweep, sb.String())
}

func (l *OpsLogger) LogPolicy(p domain.Policy) {
	msg := fmt.Sprintf("⚙️ *Policy v%d*\n\n*By:* %s\n*Points rate:* %s\n*Streak discount:* %s after %d\n*Grace/Delinquency:* %d/%d days\n*Reminder lead:* %d days",
		p.Version, EscapeMarkdown(p.UpdatedBy), p.PointsRate.String(), p.StreakDiscountRate.String(),
		p.StreakDiscountThreshold, p.GraceDays, p.DelinquencyDays, p.ReminderDaysBefore)
	l.Log(LogTypePolicy, msg)
}

func (l *OpsLogger) topicID(logType LogType) int {
	switch logType {
	case LogTypeError:
		return l.cfg.LogTopicError
	case LogTypePayment:
		return l.cfg.LogTopicPayment
	case LogTypeSweep:
		return l.cfg.LogTopicSweep
	case LogTypePolicy:
		return l.cfg.LogTopicPolicy
	default:
		return 0
	}
}
