package telegram

import (
	"context"
	"fmt"

	"github.com/care-attendance/attendance-bot/internal/domain/otp"
	"github.com/care-attendance/attendance-bot/pkg/timeutil"
)

// OtpDeliverer sends one-time codes into the chat that requested them.
type OtpDeliverer struct {
	client *Client
}

// NewOtpDeliverer creates a chat-based otp.Deliverer.
func NewOtpDeliverer(client *Client) *OtpDeliverer {
	return &OtpDeliverer{client: client}
}

// Deliver implements otp.Deliverer.
func (d *OtpDeliverer) Deliver(ctx context.Context, delivery otp.Delivery) error {
	text := fmt.Sprintf("Your OTP is: %s (valid %s)", delivery.Code, timeutil.FormatWindow(delivery.ValidFor))
	return d.client.SendToSession(ctx, delivery.SessionID, text, nil)
}

var _ otp.Deliverer = (*OtpDeliverer)(nil)
