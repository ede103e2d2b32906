// Package presenter formats data for Telegram display.
// Presenters handle the conversion from application results to
// Telegram messages and inline keyboards.
package presenter

import (
	"github.com/care-attendance/attendance-bot/internal/application/registration"
	"github.com/care-attendance/attendance-bot/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// INLINE KEYBOARD TYPES
// Transport-agnostic keyboards; the bot converts them with ToMarkup.
// ══════════════════════════════════════════════════════════════════════════════

// InlineKeyboard represents an inline keyboard.
type InlineKeyboard struct {
	Rows [][]InlineButton
}

// InlineButton represents a single callback button.
type InlineButton struct {
	Text         string
	CallbackData string
}

// NewInlineKeyboard creates a new empty inline keyboard.
func NewInlineKeyboard() *InlineKeyboard {
	return &InlineKeyboard{Rows: make([][]InlineButton, 0)}
}

// AddRow adds a row of buttons.
func (k *InlineKeyboard) AddRow(buttons ...InlineButton) *InlineKeyboard {
	if len(buttons) > 0 {
		k.Rows = append(k.Rows, buttons)
	}
	return k
}

// IsEmpty reports whether the keyboard has no buttons.
func (k *InlineKeyboard) IsEmpty() bool {
	return k == nil || len(k.Rows) == 0
}

// CallbackButton creates a callback button.
func CallbackButton(text, callbackData string) InlineButton {
	return InlineButton{Text: text, CallbackData: callbackData}
}

// ToMarkup converts the keyboard to the Bot API form. Nil for an empty keyboard.
func (k *InlineKeyboard) ToMarkup() *telegram.InlineKeyboardMarkup {
	if k.IsEmpty() {
		return nil
	}
	kb := telegram.NewKeyboard()
	for _, row := range k.Rows {
		buttons := make([]telegram.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, telegram.Button(b.Text, b.CallbackData))
		}
		kb.Row(buttons...)
	}
	return kb.Build()
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYBOARD BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// KeyboardBuilder builds inline keyboards for the handlers.
type KeyboardBuilder struct{}

// NewKeyboardBuilder creates a new KeyboardBuilder.
func NewKeyboardBuilder() *KeyboardBuilder {
	return &KeyboardBuilder{}
}

// FromButtons lays registration buttons out in a single row.
func (b *KeyboardBuilder) FromButtons(buttons []registration.Button) *InlineKeyboard {
	kb := NewInlineKeyboard()
	row := make([]InlineButton, 0, len(buttons))
	for _, btn := range buttons {
		row = append(row, CallbackButton(btn.Label, btn.Data))
	}
	return kb.AddRow(row...)
}
