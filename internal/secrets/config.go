package secrets

import (
	"fmt"
	"regexp"
)

// Config configures a Scrubber.
type Config struct {
	Enabled bool `koanf:"enabled"`

	// Gitleaks adds the gitleaks default rule pack on top of Rules.
	Gitleaks bool `koanf:"gitleaks"`

	Rules []Rule `koanf:"rules"`

	// Replacement substitutes each redacted span. Default "[REDACTED]".
	Replacement string `koanf:"replacement"`

	// AllowList holds patterns whose matches are never redacted.
	AllowList []string `koanf:"allow_list"`

	compiled  []*compiledRule
	allowList []*regexp.Regexp
}

// Rule is one regular-expression detector.
type Rule struct {
	ID          string `koanf:"id"`
	Description string `koanf:"description"`
	Pattern     string `koanf:"pattern"`
	// Keywords gate the rule: it only runs when one of them occurs.
	Keywords []string `koanf:"keywords"`
	Severity string   `koanf:"severity"`
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig enables the built-in rules and the gitleaks pack.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		Gitleaks:    true,
		Rules:       DefaultRules(),
		Replacement: "[REDACTED]",
		AllowList:   []string{},
	}
}

// Validate compiles rules and allow-list patterns.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Replacement == "" {
		c.Replacement = "[REDACTED]"
	}

	c.compiled = make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: id is required", i)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}
		cr := &compiledRule{Rule: rule, pattern: re}
		for _, kw := range rule.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		c.compiled = append(c.compiled, cr)
	}

	c.allowList = make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, pattern := range c.AllowList {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		c.allowList = append(c.allowList, re)
	}
	return nil
}
