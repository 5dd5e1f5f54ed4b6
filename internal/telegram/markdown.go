package telegram

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/set-night/acueducto/internal/domain"
)

// SplitMessage splits a message into chunks of maxLen characters,
// trying to split at newlines when possible.
func SplitMessage(text string, maxLen int) []string {
	if utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(text) > 0 {
		if utf8.RuneCountInString(text) <= maxLen {
			parts = append(parts, text)
			break
		}

		runes := []rune(text)
		splitAt := maxLen

		// Try to split at a newline
		chunk := string(runes[:maxLen])
		if lastNewline := strings.LastIndex(chunk, "\n"); lastNewline > len(chunk)/2 {
			splitAt = utf8.RuneCountInString(chunk[:lastNewline]) + 1
		}

		parts = append(parts, string(runes[:splitAt]))
		text = string(runes[splitAt:])
	}

	return parts
}

// FixMarkdown closes an unbalanced code block or inline code span.
func FixMarkdown(text string) string {
	if strings.Count(text, "```")%2 != 0 {
		text += "\n```"
	}
	return fixInlineCode(text)
}

func fixInlineCode(text string) string {
	var builder strings.Builder
	inCodeBlock := false
	inlineOpen := false

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		// escaped characters are literal
		if !inCodeBlock && runes[i] == '\\' && i+1 < len(runes) {
			builder.WriteRune(runes[i])
			builder.WriteRune(runes[i+1])
			i++
			continue
		}

		if i+2 < len(runes) && string(runes[i:i+3]) == "```" {
			if inlineOpen {
				builder.WriteRune('`')
				inlineOpen = false
			}
			inCodeBlock = !inCodeBlock
			builder.WriteString("```")
			i += 2
			continue
		}

		if !inCodeBlock && runes[i] == '`' {
			inlineOpen = !inlineOpen
		}

		builder.WriteRune(runes[i])
	}

	if inlineOpen {
		builder.WriteRune('`')
	}

	return builder.String()
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// EscapeMarkdown escapes user supplied text for legacy Markdown.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

var notificationIcons = map[domain.NotificationKind]string{
	domain.NotificationReminder:    "⏰",
	domain.NotificationBenefit:     "🎁",
	domain.NotificationAchievement: "🏆",
	domain.NotificationPayment:     "💧",
	domain.NotificationSystem:      "ℹ️",
}

// FormatNotification renders a notification as a chat message.
func FormatNotification(n domain.Notification) string {
	var sb strings.Builder
	if icon, ok := notificationIcons[n.Kind]; ok {
		sb.WriteString(icon + " ")
	}
	sb.WriteString("*" + EscapeMarkdown(n.Title) + "*\n\n")
	sb.WriteString(EscapeMarkdown(n.Message))

	if ref := n.Data["reference"]; ref != "" {
		sb.WriteString("\n\nReference: `" + ref + "`")
	}
	return sb.String()
}

// sortedKeys is used where map output must be stable.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
