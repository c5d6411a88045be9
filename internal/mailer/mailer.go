// Package mailer delivers HTML email over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"

	"fleetops/internal/config"
	"fleetops/internal/retry"
)

var ErrNoRecipient = errors.New("mailer: recipient is empty")

// Mailer sends a single HTML message.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Settings is one SMTP account.
type Settings struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	UseTLS    bool
}

// FromConfig converts the static mail configuration.
func FromConfig(c config.Mail) Settings {
	return Settings{
		Host:      c.Host,
		Port:      c.Port,
		Username:  c.Username,
		Password:  c.Password,
		FromEmail: c.FromEmail,
		FromName:  c.FromName,
		UseTLS:    c.UseTLS,
	}
}

// SettingsSource supplies the account to send with. ok is false when nothing is configured.
type SettingsSource interface {
	SMTPSettings(ctx context.Context) (s Settings, ok bool, err error)
}

type deliverFunc func(s Settings, m *gomail.Message) error

// SMTPMailer resolves the current account on every send, so dashboard changes
// apply without a restart, and falls back to the static configuration.
type SMTPMailer struct {
	source   SettingsSource
	fallback Settings
	policy   retry.Policy
	deliver  deliverFunc
}

func NewSMTPMailer(source SettingsSource, fallback Settings, policy retry.Policy) *SMTPMailer {
	return &SMTPMailer{source: source, fallback: fallback, policy: policy, deliver: dialAndSend}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, html string) error {
	s := m.fallback
	if m.source != nil {
		resolved, ok, err := m.source.SMTPSettings(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to load email configuration, using fallback")
		} else if ok {
			s = resolved
		}
	}
	return m.SendWith(ctx, s, to, subject, html)
}

// SendWith delivers through the given account with the retry policy applied.
func (m *SMTPMailer) SendWith(ctx context.Context, s Settings, to, subject, html string) error {
	if to == "" {
		return ErrNoRecipient
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.FromEmail, s.FromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)

	return m.policy.Do(ctx, "smtp.send", func(ctx context.Context) error {
		// gomail has no context support, the attempt is abandoned on timeout
		done := make(chan error, 1)
		go func() { done <- m.deliver(s, msg) }()

		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("smtp delivery to %s failed: %w", s.Host, err)
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func dialAndSend(s Settings, m *gomail.Message) error {
	d := gomail.NewDialer(s.Host, s.Port, s.Username, s.Password)
	// implicit TLS on 465, STARTTLS is negotiated by gomail otherwise
	d.SSL = s.UseTLS && s.Port == 465
	d.TLSConfig = &tls.Config{ServerName: s.Host, MinVersion: tls.VersionTLS12}
	return d.DialAndSend(m)
}
