package autowriter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/autowriter/internal/generate"
)

// Listing limits.
const (
	MinWords      = 120
	MaxWords      = 200
	MinBullets    = 5
	MaxBullets    = 8
	MaxBulletLen  = 120
	MaxKeywords   = 20
	WarnNoMake    = "Missing make."
	WarnNoModel   = "Missing model."
	WarnNoYear    = "Missing year."
	WarnNoMileage = "Mileage not provided."
	WarnNoTrans   = "Transmission not provided."
	WarnNoEngine  = "Engine not provided."
)

// RejectedError reports why a generated listing was not usable.
type RejectedError struct {
	Reason string // "word_count" or "bullet_count"
	Got    int
}

func (e *RejectedError) Error() string {
	switch e.Reason {
	case "word_count":
		return fmt.Sprintf("description has %d words, want %d-%d", e.Got, MinWords, MaxWords)
	case "bullet_count":
		return fmt.Sprintf("listing has %d usable bullets, want %d-%d", e.Got, MinBullets, MaxBullets)
	}
	return "listing rejected: " + e.Reason
}

// Validate cleans a generated listing and checks its length limits.
// The input is not modified.
func Validate(out *generate.Output, highlights string, entities generate.Entities, tax *Taxonomy) (*generate.Output, error) {
	fixed := &generate.Output{
		DescriptionParagraph: strings.TrimSpace(out.DescriptionParagraph),
		BulletHighlights:     SanitizeBullets(out.BulletHighlights),
		Keywords:             NormalizeKeywords(out.Keywords, highlights, tax),
		Warnings:             nonEmpty(out.Warnings),
		Evidence:             append([]generate.EvidenceNote(nil), out.Evidence...),
	}
	if fixed.Evidence == nil {
		fixed.Evidence = []generate.EvidenceNote{}
	}

	if wc := WordCount(fixed.DescriptionParagraph); wc < MinWords || wc > MaxWords {
		return nil, &RejectedError{Reason: "word_count", Got: wc}
	}
	if n := len(fixed.BulletHighlights); n < MinBullets || n > MaxBullets {
		return nil, &RejectedError{Reason: "bullet_count", Got: n}
	}

	fixed.DetectedEntities = mergeEntities(entities, out.DetectedEntities)

	if len(fixed.Warnings) == 0 {
		if fixed.DetectedEntities.Make.IsNull() {
			fixed.Warnings = append(fixed.Warnings, WarnNoMake)
		}
		if fixed.DetectedEntities.Model.IsNull() {
			fixed.Warnings = append(fixed.Warnings, WarnNoModel)
		}
		if fixed.DetectedEntities.Year.IsNull() {
			fixed.Warnings = append(fixed.Warnings, WarnNoYear)
		}
	}
	return fixed, nil
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// SanitizeBullets trims and collapses whitespace, dropping empty bullets
// and bullets longer than MaxBulletLen characters.
func SanitizeBullets(bullets []string) []string {
	out := make([]string, 0, len(bullets))
	for _, b := range bullets {
		b = strings.Join(strings.Fields(b), " ")
		if b == "" || utf8.RuneCountInString(b) > MaxBulletLen {
			continue
		}
		out = append(out, b)
	}
	return out
}

// NormalizeKeywords maps keywords onto the taxonomy, drops unknown ones,
// adds tags found in the highlights, and caps the result at MaxKeywords.
func NormalizeKeywords(keywords []string, highlights string, tax *Taxonomy) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, MaxKeywords)
	add := func(tag string) {
		if _, dup := seen[tag]; dup || len(out) >= MaxKeywords {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	for _, k := range keywords {
		if tag, ok := tax.Normalize(k); ok {
			add(tag)
		}
	}
	for _, tag := range tax.ExtractTags(highlights) {
		add(tag)
	}
	return out
}

// mergeEntities prefers the caller's non-null values over the model's.
func mergeEntities(caller, model generate.Entities) generate.Entities {
	var out generate.Entities
	for _, name := range generate.EntityNames {
		v := *caller.Field(name)
		if v.IsNull() {
			v = *model.Field(name)
		}
		*out.Field(name) = v
	}
	return out
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
