package email

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/promise4all/visit-management/internal/config"
	"github.com/promise4all/visit-management/internal/visit"
)

func TestFormatReminder(t *testing.T) {
	at := time.Date(2026, 2, 4, 14, 30, 0, 0, time.UTC)
	m := FormatReminder(&visit.Visit{ID: 42, AssignedTo: "rep@example.com", ScheduledTime: &at})

	if m.Subject != "Visit Reminder: 42" {
		t.Errorf("subject = %q", m.Subject)
	}
	if m.Body != "You have a visit scheduled at 2026-02-04 14:30:00." {
		t.Errorf("body = %q", m.Body)
	}
	if len(m.To) != 1 || m.To[0] != "rep@example.com" {
		t.Errorf("to = %v", m.To)
	}
}

func TestSendDevModePrints(t *testing.T) {
	var buf bytes.Buffer
	s := NewSender(config.SMTPConfig{}, true)
	s.out = &buf

	err := s.Send(context.Background(), Message{To: []string{" rep@example.com "}, Subject: "Hi", Body: "Body"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(buf.String(), "[DEV] Email to rep@example.com: Hi") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSendNotConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SMTPConfig
	}{
		{"disabled", config.SMTPConfig{Host: "smtp.example.com", From: "a@example.com"}},
		{"no host", config.SMTPConfig{Enabled: true, From: "a@example.com"}},
		{"no from", config.SMTPConfig{Enabled: true, Host: "smtp.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewSender(tt.cfg, false).Send(context.Background(), Message{To: []string{"rep@example.com"}})
			if !errors.Is(err, ErrNotConfigured) {
				t.Errorf("err = %v, want ErrNotConfigured", err)
			}
		})
	}
}

func TestSendRequiresRecipient(t *testing.T) {
	if err := NewSender(config.SMTPConfig{}, true).Send(context.Background(), Message{To: []string{" "}}); err == nil {
		t.Error("expected error without recipients")
	}
}
