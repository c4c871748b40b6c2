package policy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Rule types.
const (
	RuleTypeDenyDomain = "deny_domain"
)

// Params is the decoded, rule-type specific configuration of a rule.
type Params interface {
	RuleType() string
}

// DenyDomainParams configures a deny_domain rule.
type DenyDomainParams struct {
	Domain string `json:"domain"`
}

// RuleType implements Params.
func (DenyDomainParams) RuleType() string { return RuleTypeDenyDomain }

// UnsupportedParams stands in for rule types this engine does not evaluate.
type UnsupportedParams struct {
	Type string
}

// RuleType implements Params.
func (p UnsupportedParams) RuleType() string { return p.Type }

// DecodeParams decodes raw rule params according to ruleType. Unknown rule
// types decode to UnsupportedParams without error.
func DecodeParams(ruleType string, raw json.RawMessage) (Params, error) {
	switch ruleType {
	case RuleTypeDenyDomain:
		var p DenyDomainParams
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("invalid %s params: %w", ruleType, err)
			}
		}
		p.Domain = strings.ToLower(strings.TrimSpace(p.Domain))
		return p, nil
	default:
		return UnsupportedParams{Type: ruleType}, nil
	}
}
