// Package tgui holds small Telegram text helpers: HTML-safe fragments for
// ParseMode="HTML" and rune-aware truncation to the Bot API message limit.
package tgui
