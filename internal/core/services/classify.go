package services

import (
	"strings"

	"github.com/melih/gamehost/internal/core/domain"
)

// Rule maps a diagnostic substring to a failure reason.
type Rule struct {
	Substring string
	Reason    domain.FailureReason
}

// DefaultRules covers the messages emitted by the Docker engine for host
// port clashes and container name clashes.
var DefaultRules = []Rule{
	{Substring: "ports are not available", Reason: domain.ReasonPortConflict},
	{Substring: "port is already allocated", Reason: domain.ReasonPortConflict},
	{Substring: "address already in use", Reason: domain.ReasonPortConflict},
	{Substring: "Conflict. The container name", Reason: domain.ReasonNameConflict},
	{Substring: "is already in use by container", Reason: domain.ReasonNameConflict},
}

// Classifier turns free-text runtime diagnostics into a FailureReason.
// Port rules always win over name rules, whatever order they were given in:
// a stale container left behind by a failed port attempt also trips the name
// check on the next launch.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier from rules, or from DefaultRules when
// none are given.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	c := &Classifier{rules: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		if r.Substring == "" {
			continue
		}
		c.rules = append(c.rules, Rule{Substring: strings.ToLower(r.Substring), Reason: r.Reason})
	}
	return c
}

// Classify returns the reason of the first matching rule, checking port
// rules before name rules. Unmatched messages are ReasonOther.
func (c *Classifier) Classify(message string) domain.FailureReason {
	msg := strings.ToLower(message)
	for _, want := range []domain.FailureReason{domain.ReasonPortConflict, domain.ReasonNameConflict} {
		for _, r := range c.rules {
			if r.Reason == want && strings.Contains(msg, r.Substring) {
				return want
			}
		}
	}
	return domain.ReasonOther
}
