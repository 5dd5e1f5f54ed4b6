package telegram

import (
	"fmt"

	"github.com/go-telegram/bot/models"
	"github.com/set-night/acueducto/internal/domain"
)

// InlineButton creates a single inline keyboard button.
func InlineButton(text, callbackData string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

// URLButton creates a URL inline keyboard button.
func URLButton(text, url string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text: text,
		URL:  url,
	}
}

// InlineKeyboard creates an inline keyboard from rows of buttons.
func InlineKeyboard(rows ...[]models.InlineKeyboardButton) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: rows,
	}
}

// PaginationRow creates a pagination row with prev/next buttons.
func PaginationRow(currentPage, totalPages int, callbackPrefix string) []models.InlineKeyboardButton {
	var row []models.InlineKeyboardButton

	if currentPage > 0 {
		row = append(row, InlineButton("⬅️", fmt.Sprintf("%s_%d", callbackPrefix, currentPage-1)))
	}

	row = append(row, InlineButton(
		fmt.Sprintf("%d/%d", currentPage+1, totalPages),
		"cur",
	))

	if currentPage < totalPages-1 {
		row = append(row, InlineButton("➡️", fmt.Sprintf("%s_%d", callbackPrefix, currentPage+1)))
	}

	return row
}

// CheckoutKeyboard links to the gateway checkout page.
func CheckoutKeyboard(link string) *models.InlineKeyboardMarkup {
	return InlineKeyboard([]models.InlineKeyboardButton{URLButton("💳 Pay now", link)})
}

// PlanKeyboard offers one button per membership plan.
func PlanKeyboard() *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	for _, p := range []domain.Plan{domain.PlanBasic, domain.PlanPro, domain.PlanEnterprise} {
		rows = append(rows, []models.InlineKeyboardButton{
			InlineButton(fmt.Sprintf("%s · %s COP", p, p.Price().StringFixed(0)), "plan_"+string(p)),
		})
	}
	return InlineKeyboard(rows...)
}

// DonationKeyboard offers the preset donation amounts, two per row.
func DonationKeyboard(presets []int) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	var row []models.InlineKeyboardButton
	for _, amount := range presets {
		row = append(row, InlineButton(fmt.Sprintf("%d COP", amount), fmt.Sprintf("donate_%d", amount)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return InlineKeyboard(rows...)
}

// InvoiceKeyboard offers payment for an unpaid invoice and nothing for a
// paid one.
func InvoiceKeyboard(inv domain.Invoice) models.ReplyMarkup {
	if inv.IsPaid() {
		return nil
	}
	return InlineKeyboard([]models.InlineKeyboardButton{InlineButton("💳 Pay "+inv.Number, "payinv_"+inv.Number)})
}
