package alerts

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"strings"
)

var ErrMailerNotConfigured = errors.New("mailer not configured")

// MailConfig selects and configures the outbound mail provider.
type MailConfig struct {
	Provider string // "smtp", "plunk" or empty to infer

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	ReplyTo      string

	PlunkAPIKey string
	PlunkFrom   string
	PlunkAPIURL string
}

// Mailer sends plain text or HTML email through SMTP or Plunk.
type Mailer struct {
	cfg    MailConfig
	client *http.Client
}

func NewMailer(cfg MailConfig) *Mailer {
	if cfg.PlunkAPIURL == "" {
		cfg.PlunkAPIURL = "https://api.useplunk.com/v1/send"
	}
	return &Mailer{cfg: cfg, client: http.DefaultClient}
}

func (m *Mailer) provider() string {
	switch {
	case m.cfg.Provider != "":
		return m.cfg.Provider
	case m.cfg.PlunkAPIKey != "":
		return "plunk"
	case m.cfg.SMTPHost != "":
		return "smtp"
	}
	return ""
}

func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	switch m.provider() {
	case "plunk":
		return m.sendViaPlunk(ctx, to, subject, body)
	case "smtp":
		return m.sendViaSMTP(ctx, to, subject, body)
	}
	return ErrMailerNotConfigured
}

func contentType(body string) string {
	lb := strings.ToLower(body)
	if strings.Contains(lb, "<html") || strings.Contains(lb, "<body") || strings.Contains(lb, "<!doctype html") {
		return "text/html"
	}
	return "text/plain"
}

func (m *Mailer) buildMessage(to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.SMTPFrom)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	if m.cfg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", m.cfg.ReplyTo)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s; charset=\"utf-8\"\r\n", contentType(body))
	b.WriteString("\r\n" + body + "\r\n")
	return b.String()
}

// sendViaSMTP sends over implicit TLS.
func (m *Mailer) sendViaSMTP(ctx context.Context, to, subject, body string) error {
	c := m.cfg
	if c.SMTPHost == "" || c.SMTPPort == "" || c.SMTPUsername == "" || c.SMTPPassword == "" || c.SMTPFrom == "" {
		return fmt.Errorf("%w: set SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD, SMTP_FROM (or MAIL_PROVIDER=plunk)", ErrMailerNotConfigured)
	}
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: c.SMTPHost}}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(c.SMTPHost, c.SMTPPort))
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, c.SMTPHost)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if err := client.Auth(smtp.PlainAuth("", c.SMTPUsername, c.SMTPPassword, c.SMTPHost)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(c.SMTPFrom); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write([]byte(m.buildMessage(to, subject, body))); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return client.Quit()
}
