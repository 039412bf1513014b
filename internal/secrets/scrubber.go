// Package secrets detects and redacts credentials in prompts and agent
// outputs before they are sent to an LLM provider, written to disk or
// logged. Detection combines a small regular-expression rule set with the
// gitleaks default rule pack.
package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Scrubber redacts secrets from text.
type Scrubber interface {
	// Scrub returns content with every detected secret replaced.
	Scrub(content string) *Result
	// Check detects secrets and leaves content untouched.
	Check(content string) *Result
	IsEnabled() bool
}

// Finding describes one detected secret. The secret itself is never kept.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Line        int    `json:"line"`
}

// Result is the outcome of one scrub.
type Result struct {
	Scrubbed      string         `json:"scrubbed"`
	Findings      []Finding      `json:"findings,omitempty"`
	TotalFindings int            `json:"total_findings"`
	ByRule        map[string]int `json:"by_rule,omitempty"`
}

// HasFindings reports whether anything was detected.
func (r *Result) HasFindings() bool {
	return r.TotalFindings > 0
}

// RuleIDs returns the matched rule ids, sorted.
func (r *Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type span struct{ start, end int }

type scrubber struct {
	cfg *Config

	// gitleaks detectors keep per-scan state.
	mu       sync.Mutex
	detector *detect.Detector
}

// New builds a Scrubber from cfg, or DefaultConfig when cfg is nil.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &scrubber{cfg: cfg}
	if cfg.Enabled && cfg.Gitleaks {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("load gitleaks rules: %w", err)
		}
		s.detector = d
	}
	return s, nil
}

// MustNew is New that panics on error.
func MustNew(cfg *Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *scrubber) IsEnabled() bool {
	return s.cfg.Enabled
}

func (s *scrubber) Check(content string) *Result {
	r := s.Scrub(content)
	r.Scrubbed = content
	return r
}

func (s *scrubber) Scrub(content string) *Result {
	result := &Result{Scrubbed: content, Findings: []Finding{}, ByRule: map[string]int{}}
	if !s.cfg.Enabled || content == "" {
		return result
	}

	var spans []span
	add := func(start, end int, f Finding) {
		if s.allowed(content[start:end]) {
			return
		}
		f.Line = strings.Count(content[:start], "\n") + 1
		result.Findings = append(result.Findings, f)
		result.ByRule[f.RuleID]++
		spans = append(spans, span{start, end})
	}

	for _, rule := range s.cfg.compiled {
		if !rule.triggered(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			add(m[0], m[1], Finding{RuleID: rule.ID, Description: rule.Description, Severity: rule.Severity})
		}
	}

	if s.detector != nil {
		s.mu.Lock()
		found := s.detector.DetectString(content)
		s.mu.Unlock()

		for _, f := range found {
			secret := f.Secret
			if secret == "" {
				secret = f.Match
			}
			if secret == "" || coveredBy(spans, content, secret) {
				continue
			}
			for _, start := range indexAll(content, secret) {
				add(start, start+len(secret), Finding{RuleID: "gitleaks:" + f.RuleID, Description: f.Description, Severity: "high"})
			}
		}
	}

	result.TotalFindings = len(result.Findings)
	if len(spans) > 0 {
		result.Scrubbed = redact(content, spans, s.cfg.Replacement)
	}
	return result
}

func (r *compiledRule) triggered(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

func (s *scrubber) allowed(match string) bool {
	for _, re := range s.cfg.allowList {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

// coveredBy reports whether every occurrence of secret already lies inside
// a span found by the regular-expression rules.
func coveredBy(spans []span, content, secret string) bool {
	for _, start := range indexAll(content, secret) {
		end := start + len(secret)
		inside := false
		for _, sp := range spans {
			if start >= sp.start && end <= sp.end {
				inside = true
				break
			}
		}
		if !inside {
			return false
		}
	}
	return true
}

func indexAll(content, sub string) []int {
	var out []int
	for off := 0; ; {
		i := strings.Index(content[off:], sub)
		if i < 0 {
			return out
		}
		out = append(out, off+i)
		off += i + len(sub)
	}
}

// redact merges overlapping spans and replaces them left to right.
func redact(content string, spans []span, replacement string) string {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	merged := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}

	var b strings.Builder
	prev := 0
	for _, sp := range merged {
		b.WriteString(content[prev:sp.start])
		b.WriteString(replacement)
		prev = sp.end
	}
	b.WriteString(content[prev:])
	return b.String()
}

// Nop passes content through unchanged.
type Nop struct{}

func (Nop) Scrub(content string) *Result {
	return &Result{Scrubbed: content, Findings: []Finding{}, ByRule: map[string]int{}}
}

func (n Nop) Check(content string) *Result { return n.Scrub(content) }

func (Nop) IsEnabled() bool { return false }

var (
	_ Scrubber = (*scrubber)(nil)
	_ Scrubber = Nop{}
)
