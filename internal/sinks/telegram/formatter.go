package telegram

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"focusguard/internal/core"
)

// FormatNudge formats a usage notification into a Telegram message.
// Package IDs often contain underscores, so user text is escaped.
func FormatNudge(packageID, message string) string {
	var sb strings.Builder

	sb.WriteString("⏱ *Screen time*\n")
	sb.WriteString(tgbotapi.EscapeText(tgbotapi.ModeMarkdown, message))
	if packageID != "" && !strings.Contains(message, packageID) {
		sb.WriteString(fmt.Sprintf("\nApp: `%s`", packageID))
	}

	return sb.String()
}

// FormatToday formats today's per-app usage, longest first
func FormatToday(records []*core.UsageRecord) string {
	var sb strings.Builder
	sb.WriteString("📊 *Today's Screen Time*\n\n")

	if len(records) == 0 {
		sb.WriteString("No usage recorded yet.")
		return sb.String()
	}

	var total time.Duration
	for _, r := range records {
		total += r.Duration
		sb.WriteString(fmt.Sprintf("• `%s`: %s\n", r.PackageID, formatMinutes(r.Duration)))
	}
	sb.WriteString(fmt.Sprintf("\n*Total:* %s", formatMinutes(total)))

	return sb.String()
}

// FormatBreak formats the break state
func FormatBreak(state core.BreakState, now time.Time) string {
	remaining := state.Remaining(now)
	if remaining == 0 {
		return "☕ No break running."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("☕ *Break running*\n%s left", formatMinutes(remaining)))
	if len(state.Whitelist) > 0 {
		sb.WriteString("\n\n*Allowed:*\n")
		for _, pkg := range state.Whitelist {
			sb.WriteString(fmt.Sprintf("• `%s`\n", pkg))
		}
	}
	return sb.String()
}

// FormatError formats an error for a chat reply
func FormatError(err error) string {
	return "❌ " + tgbotapi.EscapeText(tgbotapi.ModeMarkdown, err.Error())
}

func formatMinutes(d time.Duration) string {
	minutes := int(d / time.Minute)
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}
