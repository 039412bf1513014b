package debt

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Track(t *testing.T) {
	tr := NewTracker()

	id := tr.Track(Item{Title: "Duplicated parsing"})
	require.NotEmpty(t, id)

	items := tr.Items()
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, SeverityMedium, items[0].Severity)
	assert.False(t, items[0].CreatedAt.IsZero())

	explicit := NewItem("x", "y")
	assert.Equal(t, explicit.ID, tr.Track(explicit))
}

func TestTracker_HighPriority(t *testing.T) {
	tr := NewTracker()
	for _, s := range []Severity{SeverityLow, SeverityHigh, SeverityMedium, SeverityCritical} {
		it := NewItem(string(s), "")
		it.Severity = s
		tr.Track(it)
	}

	high := tr.HighPriority()
	require.Len(t, high, 2)
	assert.Equal(t, SeverityHigh, high[0].Severity)
	assert.Equal(t, SeverityCritical, high[1].Severity)
}

func TestTracker_ShouldTriggerReview(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.ShouldTriggerReview(10.0))
	assert.True(t, tr.ShouldTriggerReview(10.01))
	assert.False(t, tr.ShouldTriggerReview(0))
}

func TestTracker_ScanReview(t *testing.T) {
	review := strings.Join([]string{
		"## Technical Debt",
		"- Technical debt: the retry loop is copy-pasted in three places (high)",
		"- Code smell: long parameter lists in handlers",
		"* **Technical Debt**",
		"Overall the code is fine.",
		"2. CRITICAL technical debt in the auth module",
	}, "\n")

	tr := NewTracker()
	items := tr.ScanReview(review, "review:task-1")

	require.Len(t, items, 3)
	assert.Equal(t, "Technical debt: the retry loop is copy-pasted in three places (high)", items[0].Description)
	assert.Equal(t, SeverityHigh, items[0].Severity)
	assert.Equal(t, 2, items[0].Metadata["line"])
	assert.Equal(t, "review:task-1", items[0].Location)

	assert.Equal(t, SeverityMedium, items[1].Severity)
	assert.Equal(t, SeverityCritical, items[2].Severity)

	assert.Len(t, tr.Items(), 3)
	assert.Len(t, tr.HighPriority(), 2)
}

func TestTitle_Truncates(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := title(long)
	assert.Len(t, got, 80)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "short", title("short"))
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Track(NewItem("t", "d"))
			_ = tr.HighPriority()
		}()
	}
	wg.Wait()
	assert.Len(t, tr.Items(), 50)
}
