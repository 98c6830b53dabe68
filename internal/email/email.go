// Package email formats visit reminders and sends them over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/promise4all/visit-management/internal/config"
	"github.com/promise4all/visit-management/internal/visit"
)

// ErrNotConfigured is returned when SMTP is disabled or incomplete.
var ErrNotConfigured = errors.New("SMTP not configured")

// Message is a plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// FormatReminder builds the reminder for an upcoming visit. The recipient
// is the visit's assignee.
func FormatReminder(v *visit.Visit) Message {
	when := "an unscheduled time"
	if v.ScheduledTime != nil {
		when = v.ScheduledTime.UTC().Format("2006-01-02 15:04:05")
	}
	return Message{
		To:      []string{v.AssignedTo},
		Subject: fmt.Sprintf("Visit Reminder: %d", v.ID),
		Body:    fmt.Sprintf("You have a visit scheduled at %s.", when),
	}
}

// Sender delivers messages through an SMTP server.
type Sender struct {
	cfg     config.SMTPConfig
	devMode bool
	out     io.Writer
}

// NewSender creates a sender. In dev mode messages are printed instead of
// sent.
func NewSender(cfg config.SMTPConfig, devMode bool) *Sender {
	return &Sender{cfg: cfg, devMode: devMode, out: os.Stdout}
}

// IsConfigured reports whether messages can be delivered.
func (s *Sender) IsConfigured() bool {
	return s.devMode || (s.cfg.Enabled && s.cfg.Host != "" && s.cfg.From != "")
}

// Send delivers m, giving up at the context deadline or the configured
// timeout, whichever comes first.
func (s *Sender) Send(ctx context.Context, m Message) error {
	to := cleanAddrs(m.To)
	if len(to) == 0 {
		return fmt.Errorf("message has no recipients")
	}

	if s.devMode {
		fmt.Fprintf(s.out, "[DEV] Email to %s: %s\n%s\n", strings.Join(to, ", "), m.Subject, m.Body)
		return nil
	}
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.cfg.From)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.Body)

	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.SSL = s.cfg.UseSSL || s.cfg.Port == 465
	if d.SSL {
		d.TLSConfig = &tls.Config{ServerName: s.cfg.Host}
	}

	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(msg)
	}()

	wait := s.cfg.Timeout()
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left > 0 && left < wait {
			wait = left
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("sending email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("sending email: %w", context.DeadlineExceeded)
	}
}

func cleanAddrs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
