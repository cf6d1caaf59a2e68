package engine

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-perf/internal/models"
)

// RuleEngine attaches rule-based recommendations to anomaly events.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single recommendation rule.
type Rule struct {
	ID              string    `yaml:"id"`
	Match           RuleMatch `yaml:"match"`
	Recommendations []string  `yaml:"recommendations"`
}

// RuleMatch defines optional attributes for rule matching. Empty fields match
// anything.
type RuleMatch struct {
	// Metric is a case-insensitive substring of a contributing metric name.
	Metric string `yaml:"metric"`
	// Direction is "increase" or "decrease" of that metric's delta.
	Direction string `yaml:"direction"`
	// Severity is the minimum event severity.
	Severity string `yaml:"severity"`
	// Scope is "overall", "transaction" or a transaction name.
	Scope string `yaml:"scope"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleEngine loads rules from the provided path. If path is empty, returns nil engine.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("recommendation rules loaded", slog.String("path", path), slog.Int("rules", len(cfg.Rules)))
	return &RuleEngine{rules: cfg.Rules, logger: logger}, nil
}

// Recommend produces the recommendations of every rule matching the event.
func (e *RuleEngine) Recommend(event models.MergedEvent) []string {
	if e == nil {
		return nil
	}

	matched := make([]string, 0)
	for _, rule := range e.rules {
		if rule.Match.Scope != "" && !scopeMatches(rule.Match.Scope, event.Scope) {
			continue
		}
		if rule.Match.Severity != "" && event.Severity.Rank() < models.ParseSeverity(rule.Match.Severity).Rank() {
			continue
		}
		if (rule.Match.Metric != "" || rule.Match.Direction != "") && !metricMatches(rule.Match, event.Metrics) {
			continue
		}
		matched = appendUnique(matched, rule.Recommendations...)
	}
	return matched
}

func scopeMatches(want, scope string) bool {
	switch strings.ToLower(want) {
	case models.ScopeOverall:
		return scope == models.ScopeOverall
	case "transaction":
		return scope != models.ScopeOverall
	default:
		return strings.EqualFold(want, scope)
	}
}

func metricMatches(match RuleMatch, metrics []models.MetricContribution) bool {
	needle := strings.ToLower(match.Metric)
	for _, m := range metrics {
		if needle != "" && !strings.Contains(strings.ToLower(m.Name), needle) {
			continue
		}
		switch strings.ToLower(match.Direction) {
		case "increase":
			if m.DeltaPct <= 0 {
				continue
			}
		case "decrease":
			if m.DeltaPct >= 0 {
				continue
			}
		}
		return true
	}
	return false
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
