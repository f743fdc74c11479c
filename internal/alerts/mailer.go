package alerts

import (
	"context"
	"fmt"

	mail "github.com/wneessen/go-mail"

	"github.com/sourcewatch/sourcewatch/internal/config"
)

// Mailer delivers a rendered email.
type Mailer interface {
	Send(ctx context.Context, subject, htmlBody string) error
}

// SMTPMailer sends mail over authenticated SMTP. It dials per send; digests
// are infrequent enough that holding a connection open buys nothing.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer returns a mailer for the given SMTP configuration.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send composes and delivers one HTML message to the configured recipient.
func (m *SMTPMailer) Send(ctx context.Context, subject, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.User); err != nil {
		return fmt.Errorf("mailer: from address: %w", err)
	}
	if err := msg.To(m.cfg.Recipient); err != nil {
		return fmt.Errorf("mailer: to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.User),
			mail.WithPassword(m.cfg.Password()),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("mailer: client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mailer: send: %w", err)
	}
	return nil
}
