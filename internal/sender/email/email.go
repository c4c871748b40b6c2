// Package email delivers alert notifications by email.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/schoolguard/device-guardian/internal/config"
	"github.com/schoolguard/device-guardian/internal/sender/email/provider"
)

// Sender delivers a single message to a single recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Mailer sends through a provider registry, rate limited across all callers.
type Mailer struct {
	from     string
	registry *provider.Registry
	limiter  *rate.Limiter
}

// NewMailer creates a Mailer over an already populated registry. A
// ratePerSecond of 0 disables limiting.
func NewMailer(from string, registry *provider.Registry, ratePerSecond float64) *Mailer {
	limit := rate.Inf
	burst := 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = max(1, int(ratePerSecond))
	}
	return &Mailer{
		from:     from,
		registry: registry,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// New builds a Mailer from cfg. Every provider is registered; cfg.Provider is
// primary and the other configured providers act as fallbacks.
func New(ctx context.Context, cfg config.EmailConfig) (*Mailer, error) {
	registry := provider.NewRegistry()
	registry.Register(provider.NewSMTPProvider(provider.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
	}))
	registry.Register(provider.NewResendProvider(cfg.ResendAPIKey))
	if cfg.Provider == config.ProviderSES {
		registry.Register(provider.NewSESProvider(ctx, cfg.AWSRegion))
	}

	if err := registry.SetPrimary(cfg.Provider); err != nil {
		return nil, fmt.Errorf("failed to select email provider: %w", err)
	}

	var fallbacks []string
	for _, name := range registry.Names() {
		if name == cfg.Provider {
			continue
		}
		if p, ok := registry.Get(name); ok && p.IsConfigured() && name != config.ProviderSMTP {
			fallbacks = append(fallbacks, name)
		}
	}
	if err := registry.SetFallback(fallbacks...); err != nil {
		return nil, err
	}

	slog.Info("Email delivery configured",
		"provider", cfg.Provider,
		"fallbacks", fallbacks,
		"from", cfg.From,
		"rate_per_second", cfg.RatePerSecond,
	)
	return NewMailer(cfg.From, registry, cfg.RatePerSecond), nil
}

// Send waits for the rate limiter and sends one plain-text message.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("email address is empty")
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return m.registry.Send(ctx, &provider.EmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Body:    body,
	})
}

// Subject renders the alert notification subject line.
func Subject(severity, appName, alertType string) string {
	return fmt.Sprintf("[%s] %s alert: %s", strings.ToUpper(severity), appName, alertType)
}
