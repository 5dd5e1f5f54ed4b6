package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/service"
	tg "github.com/set-night/acueducto/internal/telegram"
	"github.com/shopspring/decimal"
)

func statusIcon(s domain.InvoiceStatus) string {
	switch s {
	case domain.InvoiceStatusPaid:
		return "✅"
	case domain.InvoiceStatusOverdue:
		return "⚠️"
	case domain.InvoiceStatusDelinquent:
		return "🔴"
	default:
		return "🕒"
	}
}

func formatInvoice(inv domain.Invoice, loc *time.Location) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s *Invoice %s*\n\n", statusIcon(inv.Status), tg.EscapeMarkdown(inv.Number))
	fmt.Fprintf(&sb, "Period: %s to %s\n", inv.PeriodStart.Format("2006-01-02"), inv.PeriodEnd.Format("2006-01-02"))
	fmt.Fprintf(&sb, "Readings: %s → %s (%s m³)\n",
		inv.Readings.Previous.String(), inv.Readings.Current.String(), inv.Readings.Consumption.String())
	sb.WriteString("\n*Charges*\n")
	fmt.Fprintf(&sb, "Fixed: %s\n", inv.Charges.Fixed.StringFixed(0))
	fmt.Fprintf(&sb, "Consumption: %s\n", inv.Charges.Consumption.StringFixed(0))
	if !inv.Charges.Other.IsZero() {
		fmt.Fprintf(&sb, "Other: %s\n", inv.Charges.Other.StringFixed(0))
	}
	fmt.Fprintf(&sb, "*Total: %s COP*\n\n", inv.Amount.StringFixed(0))

	fmt.Fprintf(&sb, "Due: %s\n", inv.DueDate.Format("2006-01-02"))
	fmt.Fprintf(&sb, "Status: *%s*", inv.Status)
	if inv.DaysDelinquent > 0 {
		fmt.Fprintf(&sb, " (%d days late)", inv.DaysDelinquent)
	}
	sb.WriteString("\n")
	if inv.PaymentDate != nil {
		fmt.Fprintf(&sb, "Paid: %s\n", inv.PaymentDate.In(loc).Format("2006-01-02 15:04"))
	}

	fmt.Fprintf(&sb, "\n🏅 Tier: *%s* · streak %d", inv.Membership.Tier, inv.Loyalty.PaymentStreak)
	if inv.Loyalty.PointsEarned > 0 {
		fmt.Fprintf(&sb, " · +%d points", inv.Loyalty.PointsEarned)
	}
	return sb.String()
}

func percent(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).String() + "%"
}

func formatLoyalty(s service.LoyaltySummary, window *domain.MembershipWindow, now time.Time, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString("🏅 *Your loyalty*\n\n")
	fmt.Fprintf(&sb, "Tier: *%s*\n", s.Tier)
	fmt.Fprintf(&sb, "On-time streak: %d\n", s.Streak)
	fmt.Fprintf(&sb, "Points: %d\n", s.TotalPoints)
	if s.Discount != "" && s.Discount != "0" {
		if d, err := decimal.NewFromString(s.Discount); err == nil {
			fmt.Fprintf(&sb, "Discount earned: %s\n", percent(d))
		}
	}

	sb.WriteString("\n*Tier benefits*\n")
	for _, b := range s.TierBenefits {
		sb.WriteString("• " + b + "\n")
	}
	if len(s.EligibleBenefits) > 0 {
		sb.WriteString("\n*Available rewards*\n")
		for _, b := range s.EligibleBenefits {
			sb.WriteString("• " + tg.EscapeMarkdown(b.Name))
			if b.Description != "" {
				sb.WriteString(": " + tg.EscapeMarkdown(b.Description))
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n💧 *Membership plan*\n")
	switch {
	case window == nil:
		sb.WriteString("None. Choose a plan below.")
	case window.IsActive(now):
		fmt.Fprintf(&sb, "*%s* active until %s", window.Plan, window.EndsAt.In(loc).Format("2006-01-02"))
	default:
		fmt.Fprintf(&sb, "%s expired on %s. Renew below.", window.Plan, window.EndsAt.In(loc).Format("2006-01-02"))
	}
	return sb.String()
}

func formatPolicy(p domain.Policy) string {
	var sb strings.Builder
	version := "default"
	if p.Version > 0 {
		version = fmt.Sprintf("v%d", p.Version)
	}
	fmt.Fprintf(&sb, "⚙️ *Policy %s*\n\n", version)
	fmt.Fprintf(&sb, "`points_rate` %s\n", p.PointsRate.String())
	fmt.Fprintf(&sb, "`streak_discount_threshold` %d\n", p.StreakDiscountThreshold)
	fmt.Fprintf(&sb, "`streak_discount_rate` %s\n", p.StreakDiscountRate.String())
	fmt.Fprintf(&sb, "`grace_days` %d\n", p.GraceDays)
	fmt.Fprintf(&sb, "`delinquency_days` %d\n", p.DelinquencyDays)
	fmt.Fprintf(&sb, "`penalty_rate` %s\n", p.PenaltyRate.String())
	fmt.Fprintf(&sb, "`reminder_days_before` %d\n", p.ReminderDaysBefore)
	fmt.Fprintf(&sb, "`mute_reminders` %t\n", p.MuteReminders)
	fmt.Fprintf(&sb, "`mute_achievements` %t\n", p.MuteAchievements)
	fmt.Fprintf(&sb, "`mute_benefits` %t\n", p.MuteBenefits)
	if p.UpdatedBy != "" {
		fmt.Fprintf(&sb, "\nUpdated by %s at %s", tg.EscapeMarkdown(p.UpdatedBy), p.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return sb.String()
}

func formatSweep(r service.SweepReport) string {
	var sb strings.Builder
	sb.WriteString("🗓 *Aging sweep finished*\n\n")
	fmt.Fprintf(&sb, "Scanned: %d\nTransitioned: %d\nRefreshed: %d\nUnchanged: %d\nConflicts: %d\nFailed: %d",
		r.Scanned, r.Transitioned, r.Refreshed, r.Unchanged, r.Conflicts, r.Failed)
	for _, e := range r.Errors {
		fmt.Fprintf(&sb, "\n• `%s`: %s", e.Number, tg.EscapeMarkdown(e.Err.Error()))
	}
	return sb.String()
}
