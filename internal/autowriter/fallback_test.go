package autowriter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/autowriter/internal/chunk"
	"github.com/Aman-CERP/autowriter/internal/generate"
)

func TestFallback_FromHighlights(t *testing.T) {
	tax := mustDefaultTaxonomy(t)
	entities := generate.Entities{
		Make:  chunk.StringValue("Toyota"),
		Model: chunk.StringValue("Camry"),
		Year:  chunk.IntValue(2019),
	}

	// Given comma-separated highlights, including an Arabic comma
	highlights := "Low mileage, sunroof، one owner"

	// When writing the fallback
	out := Fallback(highlights, entities, tax)

	// Then both languages quote the highlights
	assert.Contains(t, out.DescriptionParagraph, "verified seller highlights: "+highlights+".")
	assert.Contains(t, out.DescriptionParagraph, "من البائع: "+highlights+".")

	// And bullets are padded to the minimum
	assert.Equal(t, []string{"Low mileage", "sunroof", "one owner", placeholderBullet, placeholderBullet},
		out.BulletHighlights)

	assert.Equal(t, []string{"low_mileage", "sunroof", "single_owner"}, out.Keywords)
	assert.Equal(t, []string{WarnNoMileage, WarnNoTrans, WarnNoEngine}, out.Warnings)
	assert.Equal(t, entities, out.DetectedEntities)
	assert.Equal(t, []generate.EvidenceNote{{ChunkID: RuleEvidenceID, Note: "Used user highlights only."}}, out.Evidence)
}

func TestFallback_CapsBullets(t *testing.T) {
	tax := mustDefaultTaxonomy(t)
	parts := make([]string, 12)
	for i := range parts {
		parts[i] = "item"
	}

	out := Fallback(strings.Join(parts, ", "), generate.Entities{}, tax)

	assert.Len(t, out.BulletHighlights, MaxBullets)
	assert.Len(t, out.Warnings, 6)
}

func TestFallback_EmptyHighlights(t *testing.T) {
	tax := mustDefaultTaxonomy(t)

	out := Fallback("  ", generate.Entities{}, tax)

	assert.Contains(t, out.DescriptionParagraph, "No highlights provided")
	assert.Len(t, out.BulletHighlights, MinBullets)
	assert.Empty(t, out.Keywords)
}

func TestFallback_DescriptionIsPlausibleLength(t *testing.T) {
	tax := mustDefaultTaxonomy(t)

	out := Fallback("Clean title", generate.Entities{}, tax)

	assert.Greater(t, WordCount(out.DescriptionParagraph), 100)
}
