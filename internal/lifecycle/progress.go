package lifecycle

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
)

// ProgressPrinter renders pull progress on one line per layer. With plain
// set it prints one line per status change and no bar.
func ProgressPrinter(w io.Writer, plain bool) func(PullProgress) {
	bar := progress.New(progress.WithWidth(40), progress.WithoutPercentage())
	lastStatus := ""
	lastPercent := -1

	return func(p PullProgress) {
		if plain || p.Total == 0 {
			if p.Status != lastStatus {
				if lastPercent >= 0 && !plain {
					_, _ = fmt.Fprintln(w)
				}
				lastStatus, lastPercent = p.Status, -1
				_, _ = fmt.Fprintf(w, "%s: %s\n", p.Model, p.Status)
			}
			return
		}

		pct := int(p.Percent)
		if pct == lastPercent {
			return
		}
		lastPercent = pct
		lastStatus = p.Status
		_, _ = fmt.Fprintf(w, "\r%s %3d%% %s/%s", bar.ViewAs(p.Percent/100), pct,
			FormatBytes(p.Completed), FormatBytes(p.Total))
		if p.Completed >= p.Total {
			_, _ = fmt.Fprintln(w)
			lastPercent = -1
		}
	}
}

// FormatBytes formats bytes in human-readable form.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
