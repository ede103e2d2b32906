// Package handler contains Telegram command handlers.
// Each handler follows the pattern: receive request → call application layer → format response.
package handler

import (
	"github.com/care-attendance/attendance-bot/internal/interface/telegram/presenter"
)

// Message is one outgoing chat message.
type Message struct {
	// Text is plain text; no parse mode is applied.
	Text string

	// Keyboard is the inline keyboard to attach, if any.
	Keyboard *presenter.InlineKeyboard
}

// Response contains the messages to send back, in order.
type Response struct {
	Messages []Message

	// IsError indicates a user-visible failure.
	IsError bool
}

func textResponse(text string) *Response {
	return &Response{Messages: []Message{{Text: text}}}
}

func errorResponse(text string) *Response {
	return &Response{Messages: []Message{{Text: text}}, IsError: true}
}
