// Package policy evaluates normalized events against a school's policy rules.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/schoolguard/device-guardian/internal/alerts"
	"github.com/schoolguard/device-guardian/internal/database"
	"github.com/schoolguard/device-guardian/internal/events"
)

// RuleStore loads a school's enabled rules.
type RuleStore interface {
	ListEnabledRules(ctx context.Context, schoolID int64) ([]*database.PolicyRule, error)
}

// Engine matches events against rules.
type Engine struct {
	rules RuleStore
}

// NewEngine creates an engine reading rules from store.
func NewEngine(store RuleStore) *Engine {
	return &Engine{rules: store}
}

// webEventTypes are the event types deny_domain rules apply to.
var webEventTypes = map[string]bool{
	events.TypeWebAccess: true,
	events.TypeDNSQuery:  true,
}

// Evaluate returns one alert request per enabled rule that matches the event.
// device may be nil; the requests then carry no device id. Rule kinds or event
// types the engine does not handle are skipped.
func (e *Engine) Evaluate(ctx context.Context, schoolID int64, device *database.Device, eventType string, act events.Activity) ([]alerts.AlertRequest, error) {
	rules, err := e.rules.ListEnabledRules(ctx, schoolID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules for school %d: %w", schoolID, err)
	}

	var deviceID *int64
	if device != nil {
		id := device.ID
		deviceID = &id
	}

	var requests []alerts.AlertRequest
	for _, rule := range rules {
		params, err := DecodeParams(rule.RuleType, rule.Params)
		if err != nil {
			slog.Warn("Skipping rule with invalid params", "rule_id", rule.ID, "rule", rule.Name, "error", err)
			continue
		}

		switch p := params.(type) {
		case DenyDomainParams:
			if !webEventTypes[eventType] {
				slog.Debug("Rule skipped for event type", "rule_id", rule.ID, "rule_type", rule.RuleType, "event_type", eventType)
				continue
			}
			observed, ok := MatchDenyDomain(p, act)
			if !ok {
				continue
			}
			requests = append(requests, alerts.AlertRequest{
				SchoolID:  schoolID,
				DeviceID:  deviceID,
				AlertType: database.AlertTypeSecurity,
				Severity:  ruleSeverity(rule.Severity),
				Message:   fmt.Sprintf("Policy '%s' triggered. Denied domain '%s'. Observed: %s", rule.Name, p.Domain, observed),
			})
		default:
			slog.Debug("Rule skipped, unsupported rule type", "rule_id", rule.ID, "rule_type", rule.RuleType, "event_type", eventType)
		}
	}

	return requests, nil
}

// MatchDenyDomain reports whether the rule's domain is a substring of the
// observed domain, or of the URL when no domain was observed. It returns the
// observed value it matched against. An empty rule domain never matches.
func MatchDenyDomain(p DenyDomainParams, act events.Activity) (string, bool) {
	bad := strings.ToLower(strings.TrimSpace(p.Domain))
	if bad == "" {
		return "", false
	}

	observed := strings.ToLower(strings.TrimSpace(act.Domain))
	if observed == "" {
		observed = strings.ToLower(strings.TrimSpace(act.URL))
	}
	if observed == "" {
		return "", false
	}
	return observed, strings.Contains(observed, bad)
}

func ruleSeverity(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if !events.ValidSeverity(s) {
		return events.SeverityMedium
	}
	return s
}
