package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// StatusInfo describes the artifacts of a data directory and, when
// telemetry is enabled, recent usage.
type StatusInfo struct {
	DataDir    string    `json:"data_dir"`
	Vectors    int       `json:"vectors"`
	Chunks     int       `json:"chunks"`
	Backend    string    `json:"backend"`
	EmbedModel string    `json:"embed_model"`
	Dimensions int       `json:"dimensions"`
	Complete   bool      `json:"complete"`
	LastBuilt  time.Time `json:"last_built"`

	IndexSize  int64 `json:"index_size"`
	ChunksSize int64 `json:"chunks_size"`
	TotalSize  int64 `json:"total_size"`

	Generator       string `json:"generator"`
	GeneratorStatus string `json:"generator_status"` // "ready", "offline", "error"

	Usage *UsageInfo `json:"usage,omitempty"`
}

// UsageInfo summarizes recorded retrieval and generation events.
type UsageInfo struct {
	Retrievals         int            `json:"retrievals"`
	Fallbacks          int            `json:"fallbacks"`
	AvgRetrievalMs     float64        `json:"avg_retrieval_ms"`
	Generations        int            `json:"generations"`
	GenerationFailures map[string]int `json:"generation_failures,omitempty"`
	FallbackListings   int            `json:"fallback_listings"`
}

// StatusRenderer prints StatusInfo.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render prints status as text.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index: "+info.DataDir))

	state := "complete"
	if !info.Complete {
		state = r.styles.Warning.Render("incomplete (resume with --resume)")
	}
	_, _ = fmt.Fprintf(r.out, "  Chunks:     %d\n", info.Chunks)
	_, _ = fmt.Fprintf(r.out, "  Vectors:    %d\n", info.Vectors)
	_, _ = fmt.Fprintf(r.out, "  State:      %s\n", state)
	_, _ = fmt.Fprintf(r.out, "  Backend:    %s\n", info.Backend)
	_, _ = fmt.Fprintf(r.out, "  Embedding:  %s (%d dims)\n", info.EmbedModel, info.Dimensions)
	if !info.LastBuilt.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last built: %s\n", formatTime(info.LastBuilt))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Index:  %s\n", FormatBytes(info.IndexSize))
	_, _ = fmt.Fprintf(r.out, "    Chunks: %s\n", FormatBytes(info.ChunksSize))
	_, _ = fmt.Fprintf(r.out, "    Total:  %s\n", FormatBytes(info.TotalSize))

	if info.Generator != "" {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "  Generator: %s (%s)\n", info.Generator, r.renderStatus(info.GeneratorStatus))
	}

	if u := info.Usage; u != nil {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "  Usage:")
		_, _ = fmt.Fprintf(r.out, "    Retrievals:  %d (%d fallbacks, %s)\n", u.Retrievals, u.Fallbacks, percent(u.Fallbacks, u.Retrievals))
		_, _ = fmt.Fprintf(r.out, "    Avg latency: %.1f ms\n", u.AvgRetrievalMs)
		_, _ = fmt.Fprintf(r.out, "    Generations: %d\n", u.Generations)
		codes := make([]string, 0, len(u.GenerationFailures))
		for code := range u.GenerationFailures {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			_, _ = fmt.Fprintf(r.out, "      %s %d\n", r.styles.Error.Render(code), u.GenerationFailures[code])
		}
		_, _ = fmt.Fprintf(r.out, "    Rule-based listings: %d\n", u.FallbackListings)
	}
	return nil
}

// RenderJSON prints status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "offline":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

func percent(n, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.0f%%", 100*float64(n)/float64(total))
}

// formatTime formats a time relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day") + " ago"
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
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
