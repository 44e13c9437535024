package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// MailConfig holds SMTP settings.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MailClient is the send interface, injectable so tests and alternative
// providers can replace the SMTP transport.
type MailClient interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Mailer is the best-effort secondary delivery path. It never participates in
// lifecycle transactions; callers fire it on their own goroutine and log
// failures.
type Mailer struct {
	cfg MailConfig
	cli MailClient
}

func NewMailer(cfg MailConfig, cli MailClient) *Mailer {
	if cli == nil {
		cli = &smtpClient{cfg: cfg}
	}
	return &Mailer{cfg: cfg, cli: cli}
}

func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("mail: empty recipient")
	}
	return m.cli.Send(ctx, to, subject, body)
}

type smtpClient struct {
	cfg MailConfig
}

func (s *smtpClient) Send(ctx context.Context, to, subject, body string) error {
	if s.cfg.Host == "" {
		return fmt.Errorf("mail: smtp host not configured")
	}

	var msg strings.Builder
	msg.WriteString("From: " + s.cfg.From + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String()))
}
