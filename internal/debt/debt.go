// Package debt tracks technical debt reported during workflows.
package debt

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity grades a debt item.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ComplexityThreshold is the complexity above which a review is mandatory.
const ComplexityThreshold = 10.0

// Item is one piece of technical debt.
type Item struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Severity        Severity       `json:"severity"`
	Location        string         `json:"location"`
	ComplexityScore float64        `json:"complexity_score"`
	CreatedAt       time.Time      `json:"created_at"`
	Metadata        map[string]any `json:"metadata"`
}

// NewItem returns a medium severity item with a fresh id.
func NewItem(title, description string) Item {
	return Item{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Severity:    SeverityMedium,
		CreatedAt:   time.Now().UTC(),
		Metadata:    map[string]any{},
	}
}

// Tracker collects debt items. It is safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	items     []Item
	threshold float64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{threshold: ComplexityThreshold}
}

// Track records item, assigning an id when it has none, and returns the id.
func (t *Tracker) Track(item Item) string {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Severity == "" {
		item.Severity = SeverityMedium
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	t.mu.Lock()
	t.items = append(t.items, item)
	t.mu.Unlock()
	return item.ID
}

// Items returns every tracked item in tracking order.
func (t *Tracker) Items() []Item {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Item{}, t.items...)
}

// HighPriority returns the high and critical items.
func (t *Tracker) HighPriority() []Item {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := []Item{}
	for _, it := range t.items {
		if it.Severity == SeverityHigh || it.Severity == SeverityCritical {
			out = append(out, it)
		}
	}
	return out
}

// ShouldTriggerReview reports whether complexity exceeds the threshold.
func (t *Tracker) ShouldTriggerReview(complexity float64) bool {
	return complexity > t.threshold
}

var (
	debtMarker     = regexp.MustCompile(`(?i)technical debt|code smell`)
	severityMarker = regexp.MustCompile(`(?i)\b(critical|high|medium|low)\b`)
	bulletPrefix   = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)
)

// ScanReview derives debt items from reviewer output: every non-heading line
// mentioning technical debt or a code smell becomes an item. The first
// severity word on the line sets its severity. Items are tracked and
// returned.
func (t *Tracker) ScanReview(content, source string) []Item {
	found := []Item{}
	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || !debtMarker.MatchString(trimmed) {
			continue
		}
		text := strings.TrimSpace(bulletPrefix.ReplaceAllString(trimmed, ""))
		text = strings.Trim(text, "*: ")
		if text == "" || isHeadingOnly(text) {
			continue
		}
		item := NewItem(title(text), text)
		if m := severityMarker.FindString(text); m != "" {
			item.Severity = Severity(strings.ToLower(m))
		}
		item.Location = source
		item.Metadata["line"] = i + 1
		t.Track(item)
		found = append(found, item)
	}
	return found
}

// isHeadingOnly reports whether text is just a section label such as
// "Technical Debt" with nothing to track.
func isHeadingOnly(text string) bool {
	l := strings.ToLower(strings.TrimSpace(text))
	switch l {
	case "technical debt", "code smell", "code smells":
		return true
	}
	return false
}

func title(text string) string {
	const max = 80
	if r := []rune(text); len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return text
}
