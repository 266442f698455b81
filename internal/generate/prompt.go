package generate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MaxSnippetRunes bounds each evidence excerpt in the prompt.
const MaxSnippetRunes = 320

// SystemPrompt is the fixed preamble of every generation prompt.
const SystemPrompt = `You are AutoWriter AI. You must output ONLY valid JSON with the schema provided.
Rules:
1) Never claim features unless present in user highlights or supported by evidence chunks.
2) If uncertain, write a warning instead of a claim.
3) Keep tone premium and clean. English + Arabic output in the same JSON fields (English first, Arabic second).
4) Do NOT copy brochure text verbatim; paraphrase. Evidence notes must be short.
5) description_paragraph must be 120–200 words total (combined English+Arabic).
6) bullet_highlights must be 5–8 short bullets.
7) keywords must be 10–20 tags from the controlled taxonomy or synonyms.
8) If no evidence is provided, rely on highlights only and add warnings.

Return JSON only. No markdown.`

// BuildPrompt renders the complete prompt for req.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(SystemPrompt)
	b.WriteString("\n\nSchema:\n")
	b.WriteString(SchemaJSON())

	if req.Tone != "" {
		fmt.Fprintf(&b, "\n\nTone: %s", req.Tone)
	}
	if len(req.Languages) > 0 {
		fmt.Fprintf(&b, "\nLanguages (in order): %s", strings.Join(req.Languages, ", "))
	}

	b.WriteString("\n\nUser highlights:\n")
	b.WriteString(req.Highlights)

	b.WriteString("\n\nStructured fields (if any):\n")
	b.WriteString(fieldsJSON(req.Fields))

	b.WriteString("\n\nRelevant brochure evidence (short excerpts):\n")
	for i, ev := range req.Evidence {
		fmt.Fprintf(&b, "%d) [chunk_id=%s] %s\n", i+1, ev.ChunkID, Snippet(ev.Text))
	}
	return b.String()
}

// Snippet truncates text to MaxSnippetRunes runes, marking the cut.
func Snippet(text string) string {
	r := []rune(text)
	if len(r) <= MaxSnippetRunes {
		return text
	}
	return string(r[:MaxSnippetRunes]) + "..."
}

func fieldsJSON(fields map[string]any) string {
	if len(fields) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return "{}"
	}
	return strings.TrimSpace(buf.String())
}
