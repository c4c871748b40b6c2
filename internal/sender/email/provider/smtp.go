package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/schoolguard/device-guardian/internal/sender/retry"
)

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
}

// SMTPProvider sends email over SMTP. Port 465 uses implicit TLS; any other
// port upgrades with STARTTLS when the server offers it.
type SMTPProvider struct {
	cfg  SMTPConfig
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewSMTPProvider creates an SMTP provider.
func NewSMTPProvider(cfg SMTPConfig) *SMTPProvider {
	d := &net.Dialer{Timeout: 10 * time.Second}
	return &SMTPProvider{cfg: cfg, dial: d.DialContext}
}

// Name returns the provider name.
func (p *SMTPProvider) Name() string {
	return "smtp"
}

// IsConfigured returns true if host and port are set.
func (p *SMTPProvider) IsConfigured() bool {
	return p.cfg.Host != "" && p.cfg.Port != ""
}

// Send delivers req in one SMTP session.
func (p *SMTPProvider) Send(ctx context.Context, req *EmailRequest) error {
	if len(req.To) == 0 {
		return fmt.Errorf("recipient is required")
	}
	for _, rcpt := range req.To {
		if !strings.Contains(rcpt, "@") {
			return fmt.Errorf("invalid email address format: %q (missing @ symbol)", rcpt)
		}
	}
	port, err := strconv.Atoi(p.cfg.Port)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %s", p.cfg.Port)
	}

	from := req.From
	if a, err := mail.ParseAddress(req.From); err == nil {
		from = a.Address
	}
	// Gmail requires the envelope sender to match the authenticated user.
	if strings.Contains(p.cfg.Host, "gmail.com") && p.cfg.User != "" {
		from = p.cfg.User
	}

	addr := net.JoinHostPort(p.cfg.Host, p.cfg.Port)
	conn, err := p.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if port == 465 {
		conn = tls.Client(conn, &tls.Config{ServerName: p.cfg.Host})
	}

	client, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: p.cfg.Host}); err != nil {
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	if p.cfg.User != "" && p.cfg.Password != "" {
		auth := smtp.PlainAuth("", p.cfg.User, p.cfg.Password, p.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return classify(fmt.Errorf("SMTP authentication failed: %w", err))
		}
	}

	if err := client.Mail(from); err != nil {
		return classify(fmt.Errorf("failed to set sender %s: %w", from, err))
	}
	for _, rcpt := range req.To {
		if err := client.Rcpt(rcpt); err != nil {
			return classify(fmt.Errorf("failed to set recipient %s: %w", rcpt, err))
		}
	}

	w, err := client.Data()
	if err != nil {
		return classify(fmt.Errorf("failed to open data writer: %w", err))
	}
	if _, err := w.Write(BuildMessage(req.From, req.To, req.Subject, req.Body, time.Now())); err != nil {
		w.Close()
		return fmt.Errorf("failed to write email data: %w", err)
	}
	if err := w.Close(); err != nil {
		return classify(fmt.Errorf("failed to close data writer: %w", err))
	}

	if err := client.Quit(); err != nil {
		slog.Warn("Error during SMTP QUIT", "error", err)
	}
	return nil
}

// classify marks 5xx SMTP replies as permanent failures.
func classify(err error) error {
	var reply *textproto.Error
	if errors.As(err, &reply) && reply.Code >= 500 {
		return retry.Permanent(err)
	}
	return err
}

// BuildMessage renders a plain-text RFC 822 message.
func BuildMessage(from string, to []string, subject, body string, now time.Time) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", now.Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.Bytes()
}
