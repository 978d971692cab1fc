// Package categorize tags or drops log events using ordered string-matching
// rules.
package categorize

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
)

// Filter types. Both short and long spellings are accepted.
const (
	FilterStartsWith = "startsWith"
	FilterEndsWith   = "endsWith"
	FilterContains   = "contains"
)

// Actions.
const (
	ActionCategorise = "categorise"
	ActionDrop       = "drop"
)

// Action outcomes reported in Result.
const (
	ActionTakenCategorised = "categorised"
	ActionTakenDropped     = "dropped"
)

// Filter is one string test against the message.
type Filter struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// Rule matches events by level and message.
type Rule struct {
	Description string           `yaml:"description"`
	LogLevel    []string         `yaml:"logLevel"`
	Filter      []Filter         `yaml:"filter"`
	Action      string           `yaml:"action"`
	Category    []event.Category `yaml:"category"`
}

// Default is applied when no rule matched.
type Default struct {
	Enable   bool             `yaml:"enable"`
	Category []event.Category `yaml:"category"`
}

// RuleSet is the ordered rule list plus the default category policy.
type RuleSet struct {
	Enable      bool    `yaml:"enable"`
	Rules       []Rule  `yaml:"rules"`
	RuleDefault Default `yaml:"ruleDefault"`
}

// Result is the outcome of categorising one event.
type Result struct {
	Category    []event.Category
	ActionTaken string
}

// Dropped reports whether a drop rule matched.
func (r Result) Dropped() bool {
	return r.ActionTaken == ActionTakenDropped
}

// Categorizer evaluates a RuleSet. It is safe for concurrent use.
type Categorizer struct {
	rules  RuleSet
	logger *slog.Logger
}

// New returns a Categorizer bound to rs.
func New(rs RuleSet, logger *slog.Logger) *Categorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Categorizer{rules: rs, logger: logger.With("component", "log-categorizer")}
}

// Validate reports the first rule with an unknown action. Categorise fails
// the same way at runtime.
func (rs RuleSet) Validate() error {
	for i, rule := range rs.Rules {
		if _, err := normalizeAction(rule.Action); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, rule.Description, err)
		}
	}
	return nil
}

// Enabled reports whether categorisation is switched on.
func (c *Categorizer) Enabled() bool {
	return c.rules.Enable
}

// Categorise runs the rules against one event. A rule with an unknown action
// makes the whole rule set malformed and yields errors.ErrMalformedRule.
func (c *Categorizer) Categorise(level, message string) (Result, error) {
	var tags []event.Category
	matched := false

	for i, rule := range c.rules.Rules {
		action, err := normalizeAction(rule.Action)
		if err != nil {
			return Result{}, fmt.Errorf("rule %d (%s): %w", i, rule.Description, err)
		}
		if !levelMatches(rule.LogLevel, level) {
			continue
		}
		if !c.anyFilterMatches(rule, message) {
			continue
		}

		if action == ActionDrop {
			return Result{Category: []event.Category{}, ActionTaken: ActionTakenDropped}, nil
		}
		matched = true
		tags = append(tags, rule.Category...)
	}

	if !matched && c.rules.RuleDefault.Enable {
		tags = append(tags, c.rules.RuleDefault.Category...)
	}

	return Result{Category: dedupe(tags), ActionTaken: ActionTakenCategorised}, nil
}

func (c *Categorizer) anyFilterMatches(rule Rule, message string) bool {
	for _, f := range rule.Filter {
		ok, known := match(f, message)
		if !known {
			c.logger.Warn("Unknown categorisation filter type, ignoring",
				"rule", rule.Description, "filter_type", f.Type)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

func match(f Filter, message string) (matched, known bool) {
	switch f.Type {
	case "sw", FilterStartsWith:
		return strings.HasPrefix(message, f.Value), true
	case "ew", FilterEndsWith:
		return strings.HasSuffix(message, f.Value), true
	case "so", FilterContains:
		return strings.Contains(message, f.Value), true
	default:
		return false, false
	}
}

func normalizeAction(action string) (string, error) {
	switch strings.ToLower(action) {
	case "categorise", "categorize":
		return ActionCategorise, nil
	case "drop":
		return ActionDrop, nil
	default:
		return "", fmt.Errorf("unknown action %q: %w", action, errors.ErrMalformedRule)
	}
}

func levelMatches(levels []string, level string) bool {
	for _, l := range levels {
		if strings.EqualFold(l, level) {
			return true
		}
	}
	return false
}

func dedupe(tags []event.Category) []event.Category {
	out := make([]event.Category, 0, len(tags))
	seen := make(map[event.Category]struct{}, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
