package handler

import "strings"

// ══════════════════════════════════════════════════════════════════════════════
// HELP HANDLER
// Handles /help and the replies for unknown commands.
// ══════════════════════════════════════════════════════════════════════════════

// MsgUnknownCommand is the reply to any command the bot does not know.
const MsgUnknownCommand = "⚠️ Unknown command. Use /start, /attendance, or /updateinfo."

// HelpHandler lists the available commands.
type HelpHandler struct{}

// NewHelpHandler creates a new HelpHandler.
func NewHelpHandler() *HelpHandler {
	return &HelpHandler{}
}

// Handle returns the command list.
func (h *HelpHandler) Handle() *Response {
	var sb strings.Builder
	sb.WriteString("🤖 CARE attendance alerts\n\n")
	sb.WriteString("/start - register for alerts\n")
	sb.WriteString("/attendance - show your attendance now\n")
	sb.WriteString("/updateinfo - change department and year\n")
	sb.WriteString("/cancel - stop the current registration\n\n")
	sb.WriteString("Alerts arrive when your overall attendance is below 80% or a subject drops.")
	return textResponse(sb.String())
}

// Unknown answers a command that has no handler.
func (h *HelpHandler) Unknown() *Response {
	return errorResponse(MsgUnknownCommand)
}
