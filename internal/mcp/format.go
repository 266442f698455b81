package mcp

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Aman-CERP/autowriter/internal/chunk"
	"github.com/Aman-CERP/autowriter/internal/generate"
	"github.com/Aman-CERP/autowriter/internal/retrieve"
)

// FormatEvidence formats retrieved chunks as markdown.
func FormatEvidence(query string, results []retrieve.Evidence) string {
	if len(results) == 0 {
		return fmt.Sprintf("No brochure evidence found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Evidence for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d chunk", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, ev := range results {
		fmt.Fprintf(&sb, "### %d. %s (score: %.2f)\n", i+1, ev.ChunkID, ev.Score)
		if md := formatMetadata(ev.Metadata); md != "" {
			fmt.Fprintf(&sb, "%s\n\n", md)
		}
		fmt.Fprintf(&sb, "> %s\n\n", strings.ReplaceAll(generate.Snippet(ev.Text), "\n", " "))
	}
	return sb.String()
}

// FormatListing formats a listing as markdown. source and reason may be
// empty for a direct generation.
func FormatListing(o *generate.Output, source, reason string) string {
	var sb strings.Builder
	sb.WriteString("## Listing\n\n")
	if source != "" {
		fmt.Fprintf(&sb, "*Source: %s", source)
		if reason != "" {
			fmt.Fprintf(&sb, " (%s)", reason)
		}
		sb.WriteString("*\n\n")
	}

	sb.WriteString(o.DescriptionParagraph)
	sb.WriteString("\n\n### Highlights\n\n")
	for _, b := range o.BulletHighlights {
		fmt.Fprintf(&sb, "- %s\n", b)
	}

	if len(o.Keywords) > 0 {
		sb.WriteString("\n### Keywords\n\n")
		quoted := make([]string, len(o.Keywords))
		for i, k := range o.Keywords {
			quoted[i] = "`" + k + "`"
		}
		sb.WriteString(strings.Join(quoted, " "))
		sb.WriteString("\n")
	}

	sb.WriteString("\n### Detected\n\n| Field | Value |\n|---|---|\n")
	for _, name := range generate.EntityNames {
		v := o.DetectedEntities.Field(name)
		shown := "-"
		if !v.IsNull() {
			shown = v.String()
		}
		fmt.Fprintf(&sb, "| %s | %s |\n", name, shown)
	}

	if len(o.Warnings) > 0 {
		sb.WriteString("\n### Warnings\n\n")
		for _, w := range o.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}

	if len(o.Evidence) > 0 {
		sb.WriteString("\n### Evidence\n\n")
		for _, n := range o.Evidence {
			fmt.Fprintf(&sb, "- `%s` %s\n", n.ChunkID, n.Note)
		}
	}
	return sb.String()
}

// formatMetadata renders non-null metadata as "key: value" pairs in key
// order.
func formatMetadata(md chunk.Metadata) string {
	keys := make([]string, 0, len(md))
	for k, v := range md {
		if !v.IsNull() {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, md[k].String())
	}
	return strings.Join(parts, " · ")
}

// clampK ensures k is within bounds.
func clampK(k, defaultVal, maxVal int) int {
	if k <= 0 {
		return defaultVal
	}
	if k > maxVal {
		return maxVal
	}
	return k
}
