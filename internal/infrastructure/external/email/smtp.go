// Package email delivers one-time codes by SMTP for deployments that verify
// students by email address instead of phone.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/care-attendance/attendance-bot/internal/domain/otp"
	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/pkg/timeutil"
)

// Config contains SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
	Logger   *slog.Logger
}

// DefaultConfig returns defaults for a submission port relay.
func DefaultConfig() Config {
	return Config{
		Port:    587,
		Subject: "Your attendance bot verification code",
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Deliverer sends codes by email.
type Deliverer struct {
	config Config
	send   SendFunc
	now    func() time.Time
	logger *slog.Logger
}

// NewDeliverer creates an SMTP otp.Deliverer. send may be nil to use smtp.SendMail.
func NewDeliverer(config Config, send SendFunc) *Deliverer {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Subject == "" {
		config.Subject = DefaultConfig().Subject
	}
	if send == nil {
		send = smtp.SendMail
	}
	return &Deliverer{config: config, send: send, now: time.Now, logger: config.Logger}
}

// Deliver implements otp.Deliverer. smtp.SendMail has no context, so ctx is
// only checked before dialing.
func (d *Deliverer) Deliver(ctx context.Context, delivery otp.Delivery) error {
	if err := ctx.Err(); err != nil {
		return shared.WrapError("otp", "Deliver", shared.ErrDelivery, "context done", err)
	}
	to := delivery.Contact.String()
	if !strings.Contains(to, "@") {
		return shared.NewDomainError("otp", "Deliver", shared.ErrDelivery, "contact is not an email address")
	}

	var auth smtp.Auth
	if d.config.Username != "" {
		auth = smtp.PlainAuth("", d.config.Username, d.config.Password, d.config.Host)
	}

	msg := d.buildMessage(to, delivery)
	if err := d.send(d.config.Addr(), auth, d.config.From, []string{to}, msg); err != nil {
		d.logger.Warn("smtp delivery failed", "session_id", delivery.SessionID, "error", err)
		return shared.WrapError("otp", "Deliver", shared.ErrDelivery, "smtp send failed", err)
	}
	return nil
}

func (d *Deliverer) buildMessage(to string, delivery otp.Delivery) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", d.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", d.config.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", d.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&b, "Your OTP is: %s\r\n", delivery.Code)
	fmt.Fprintf(&b, "Enter it in the chat to verify (valid %s).\r\n", timeutil.FormatWindow(delivery.ValidFor))
	return []byte(b.String())
}

var _ otp.Deliverer = (*Deliverer)(nil)
