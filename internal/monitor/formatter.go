package monitor

import (
	"fmt"
	"time"
)

// FormatPercentage formats a ratio (0-1) as percentage
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}

// FormatDuration formats d as "Xh Ym", "Xm Ys" or "Xs"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d / time.Second)
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// FormatTime formats t as a wall-clock time, or "Never" when zero
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return t.Format("3:04:05 PM")
}
