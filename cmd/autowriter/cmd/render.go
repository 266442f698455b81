package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"

	"github.com/Aman-CERP/autowriter/internal/retrieve"
	"github.com/Aman-CERP/autowriter/internal/ui"
)

// renderMarkdown prints md through glamour. Terminals get the auto style;
// pipes and NO_COLOR get the plain notty style.
func renderMarkdown(w io.Writer, md string) error {
	style := glamour.WithStandardStyle("notty")
	if ui.IsTTY(w) && !ui.DetectNoColor() {
		style = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(100))
	if err != nil {
		_, werr := fmt.Fprintln(w, md)
		return werr
	}
	out, err := r.Render(md)
	if err != nil {
		_, werr := fmt.Fprintln(w, md)
		return werr
	}
	_, err = fmt.Fprint(w, out)
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseFields turns repeated key=value flags into caller fields. Numbers
// and null are recognized the same way as retrieve filters.
func parseFields(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, v, err := retrieve.ParseFilter(p)
		if err != nil {
			return nil, err
		}
		fields[key] = v.Any()
	}
	return fields, nil
}

// parseFilters turns repeated key=value flags into retrieval filters.
func parseFilters(pairs []string) (retrieve.Filters, error) {
	filters := make(retrieve.Filters, len(pairs))
	for _, p := range pairs {
		key, v, err := retrieve.ParseFilter(p)
		if err != nil {
			return nil, err
		}
		filters[key] = v
	}
	return filters, nil
}
