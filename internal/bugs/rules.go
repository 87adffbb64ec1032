package bugs

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/vigil/pkg/models"
)

// Rule is one severity classification rule. Rules act as floors: a
// matching rule raises a finding's severity to at least MinSeverity,
// never lowers it.
type Rule struct {
	// Layer restricts the rule to findings from one validation layer.
	// Empty matches every layer.
	Layer string `yaml:"layer,omitempty"`
	// Component restricts the rule to findings from one component.
	// Empty matches every component.
	Component string `yaml:"component,omitempty"`
	// Contains restricts the rule to findings whose description
	// contains this substring, case-insensitive. Empty matches all.
	Contains string `yaml:"contains,omitempty"`
	// MinSeverity is the floor applied when the rule matches.
	MinSeverity models.Severity `yaml:"min_severity"`
}

// matches reports whether the rule applies to a finding from the
// given layer.
func (r Rule) matches(layer string, f models.Finding) bool {
	if r.Layer != "" && r.Layer != layer {
		return false
	}
	if r.Component != "" && r.Component != f.Component {
		return false
	}
	if r.Contains != "" && !strings.Contains(strings.ToLower(f.Description), strings.ToLower(r.Contains)) {
		return false
	}
	return true
}

// RuleSet is the deterministic severity classification policy. Rules
// are evaluated in order and every matching rule's floor applies.
type RuleSet struct {
	// Default is the severity assumed when a finding carries no valid
	// severity hint.
	Default models.Severity `yaml:"default"`
	// Rules is the ordered rule list.
	Rules []Rule `yaml:"rules"`
}

// DefaultRuleSet returns the built-in classification policy used when
// no rules file is configured. Security findings are never classified
// below high.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		Default: models.SeverityMedium,
		Rules: []Rule{
			{Component: "security scan", MinSeverity: models.SeverityHigh},
			{Contains: "security", MinSeverity: models.SeverityHigh},
			{Contains: "timed out", MinSeverity: models.SeverityHigh},
		},
	}
}

// LoadRuleSet reads a YAML rules file and validates it.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	if rs.Default == "" {
		rs.Default = models.SeverityMedium
	}
	if !rs.Default.Valid() {
		return nil, fmt.Errorf("invalid default severity %q", rs.Default)
	}
	for i, r := range rs.Rules {
		if !r.MinSeverity.Valid() {
			return nil, fmt.Errorf("rule %d: invalid min_severity %q", i, r.MinSeverity)
		}
		if r.Layer == "" && r.Component == "" && r.Contains == "" {
			return nil, fmt.Errorf("rule %d: must constrain layer, component, or contains", i)
		}
	}
	return &rs, nil
}

// Classify computes a finding's severity: the severity hint (or the
// default when the hint is absent), raised by every matching rule's
// floor.
func (rs *RuleSet) Classify(layer string, f models.Finding) models.Severity {
	severity := f.SeverityHint
	if !severity.Valid() {
		severity = rs.Default
	}
	for _, r := range rs.Rules {
		if r.matches(layer, f) {
			severity = severity.Max(r.MinSeverity)
		}
	}
	return severity
}
