package handler

import (
	"context"

	"github.com/care-attendance/attendance-bot/internal/application/registration"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
	"github.com/care-attendance/attendance-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION HANDLER
// Handles /start, /updateinfo, /cancel, consent buttons and free text: all of
// them are inputs of the registration flow.
// ══════════════════════════════════════════════════════════════════════════════

// RegistrationFlow is the application-side state machine.
// *registration.Flow satisfies it.
type RegistrationFlow interface {
	HandleInput(ctx context.Context, in registration.Input) ([]registration.Outbound, error)
}

// RegistrationHandler forwards chat input to the registration flow.
type RegistrationHandler struct {
	flow      RegistrationFlow
	keyboards *presenter.KeyboardBuilder
}

// NewRegistrationHandler creates a new RegistrationHandler.
func NewRegistrationHandler(flow RegistrationFlow, keyboards *presenter.KeyboardBuilder) *RegistrationHandler {
	if keyboards == nil {
		keyboards = presenter.NewKeyboardBuilder()
	}
	return &RegistrationHandler{flow: flow, keyboards: keyboards}
}

// RegistrationRequest contains one flow input.
type RegistrationRequest struct {
	// SessionID is the chat the input came from.
	SessionID student.SessionID

	// Text is the message text or the callback data of a pressed button.
	Text string

	// DisplayName is the sender's name from the transport profile.
	DisplayName string
}

// Handle applies the input. The response carries whatever the flow wants to
// say even when err is set; err is an infrastructure fault for logging.
func (h *RegistrationHandler) Handle(ctx context.Context, req RegistrationRequest) (*Response, error) {
	outs, err := h.flow.HandleInput(ctx, registration.Input{
		SessionID:   req.SessionID,
		Text:        req.Text,
		DisplayName: req.DisplayName,
	})

	resp := &Response{IsError: err != nil}
	for _, out := range outs {
		resp.Messages = append(resp.Messages, Message{
			Text:     out.Text,
			Keyboard: h.keyboards.FromButtons(out.Buttons),
		})
	}
	return resp, err
}
