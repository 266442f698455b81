package generate

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/autowriter/internal/retrieve"
)

func TestBuildPrompt_Sections(t *testing.T) {
	// Given
	req := Request{
		Highlights: "GCC spec, single owner, sunroof",
		Fields:     map[string]any{"year": 2021, "make": "Toyota"},
		Evidence: []retrieve.Evidence{
			{ChunkID: "camry-p1-c1", Text: "The Camry offers a panoramic sunroof."},
			{ChunkID: "camry-p2-c1", Text: "Hybrid powertrain rated at 208 hp."},
		},
		Tone:      "premium_clean",
		Languages: []string{"en", "ar"},
	}

	// When
	prompt := BuildPrompt(req)

	// Then: preamble first, then schema, tone, highlights, fields, evidence
	assert.True(t, strings.HasPrefix(prompt, SystemPrompt))
	assert.Contains(t, prompt, "Schema:\n"+SchemaJSON())
	assert.Contains(t, prompt, "Tone: premium_clean")
	assert.Contains(t, prompt, "Languages (in order): en, ar")
	assert.Contains(t, prompt, "User highlights:\nGCC spec, single owner, sunroof")
	assert.Contains(t, prompt, `Structured fields (if any):`+"\n"+`{"make":"Toyota","year":2021}`)
	assert.Contains(t, prompt, "1) [chunk_id=camry-p1-c1] The Camry offers a panoramic sunroof.\n")
	assert.Contains(t, prompt, "2) [chunk_id=camry-p2-c1] Hybrid powertrain rated at 208 hp.\n")

	order := []string{"Schema:", "User highlights:", "Structured fields", "Relevant brochure evidence"}
	last := -1
	for _, s := range order {
		i := strings.Index(prompt, s)
		assert.Greater(t, i, last, s)
		last = i
	}
}

func TestBuildPrompt_NoFieldsNoEvidence(t *testing.T) {
	prompt := BuildPrompt(Request{Highlights: "clean car"})

	assert.Contains(t, prompt, "Structured fields (if any):\n{}")
	assert.True(t, strings.HasSuffix(prompt, "Relevant brochure evidence (short excerpts):\n"))
}

func TestSnippet(t *testing.T) {
	short := "short text"
	assert.Equal(t, short, Snippet(short))

	exact := strings.Repeat("a", MaxSnippetRunes)
	assert.Equal(t, exact, Snippet(exact))

	// Arabic runes are multi-byte; the cut counts runes, not bytes.
	long := strings.Repeat("س", MaxSnippetRunes+50)
	got := Snippet(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, MaxSnippetRunes+3, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}
