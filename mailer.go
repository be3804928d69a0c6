package auth

import (
	"context"
	"fmt"
	"html"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/gomail.v2"
)

// MailSender delivers composed messages. *gomail.Dialer satisfies it.
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig holds the settings of SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

// SMTPMailer sends verification links over SMTP.
type SMTPMailer struct {
	from    string
	subject string
	sender  MailSender
	now     func() time.Time
}

// MailerOption configures an SMTPMailer.
type MailerOption func(*SMTPMailer)

// WithMailSender replaces the SMTP dialer.
func WithMailSender(sender MailSender) MailerOption {
	return func(m *SMTPMailer) {
		if sender != nil {
			m.sender = sender
		}
	}
}

// WithMailerClock injects a custom clock (useful for tests).
func WithMailerClock(clock func() time.Time) MailerOption {
	return func(m *SMTPMailer) {
		if clock != nil {
			m.now = clock
		}
	}
}

const defaultVerificationSubject = "Verify your email address"

// NewSMTPMailer creates a mailer dialing cfg.Host for every message.
func NewSMTPMailer(cfg SMTPConfig, opts ...MailerOption) *SMTPMailer {
	m := &SMTPMailer{
		from:    cfg.From,
		subject: cfg.Subject,
		sender:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		now:     time.Now,
	}

	if m.subject == "" {
		m.subject = defaultVerificationSubject
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m *SMTPMailer) SendVerification(ctx context.Context, account *Account, link string, expiresAt time.Time) error {
	if account == nil || account.Email == "" {
		return ErrInvariantViolation.Clone().WithMetadata(map[string]any{
			"reason": "verification mail needs a recipient",
		})
	}

	if account.Email == m.from {
		return goerrors.New("recipient matches sender address", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled before sending verification mail")
	default:
	}

	if err := m.sender.DialAndSend(m.message(account, link, expiresAt)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send verification mail")
	}

	return nil
}

func (m *SMTPMailer) message(account *Account, link string, expiresAt time.Time) *gomail.Message {
	plain, rich := m.render(account, link, expiresAt)

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetAddressHeader("To", account.Email, account.DisplayName)
	msg.SetHeader("Subject", m.subject)
	msg.SetBody("text/plain", plain)
	msg.AddAlternative("text/html", rich)
	return msg
}

func (m *SMTPMailer) render(account *Account, link string, expiresAt time.Time) (string, string) {
	minutes := int(expiresAt.Sub(m.now()).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	plain := fmt.Sprintf(
		"Hi %s,\n\nOpen the link below to verify your email address:\n\n%s\n\nThis link will expire in %d minutes.\n",
		account.DisplayName, link, minutes,
	)

	rich := fmt.Sprintf(
		"<p>Hi %s,</p><p>Click <a href=\"%s\">here</a> to verify your email address.</p><p>This link will expire in %d minutes.</p>",
		html.EscapeString(account.DisplayName), html.EscapeString(link), minutes,
	)

	return plain, rich
}
