package autowriter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDefaultTaxonomy(t *testing.T) *Taxonomy {
	t.Helper()
	tax, err := DefaultTaxonomy()
	require.NoError(t, err)
	return tax
}

func TestParseTaxonomy_RejectsUnknownSynonymTarget(t *testing.T) {
	// Given a synonym pointing at an undeclared tag
	data := []byte("tags: [sedan]\nsynonyms:\n  saloon: limousine\n")

	// When parsing
	_, err := ParseTaxonomy(data)

	// Then it fails
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limousine")
}

func TestParseTaxonomy_DeduplicatesTags(t *testing.T) {
	tax, err := ParseTaxonomy([]byte("tags: [Sedan, sedan, ' suv ', '']\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"sedan", "suv"}, tax.Tags())
}

func TestTaxonomy_Normalize(t *testing.T) {
	tax := mustDefaultTaxonomy(t)

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"sunroof", "sunroof", true},
		{"  Low   Mileage ", "low_mileage", true},
		{"low_mileage", "low_mileage", true},
		{"Moonroof", "sunroof", true},
		{"GCC", "gcc_spec", true},
		{"flux capacitor", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := tax.Normalize(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTaxonomy_ExtractTags_OrderedByFirstMention(t *testing.T) {
	tax := mustDefaultTaxonomy(t)

	// Given highlights mixing tags and synonyms
	text := "Low mileage, one owner, moonroof, GCC spec, leather seats"

	// When extracting
	tags := tax.ExtractTags(text)

	// Then tags come back canonical and in order of appearance
	assert.Equal(t, []string{"low_mileage", "single_owner", "sunroof", "gcc_spec", "leather_seats"}, tags)
}

func TestTaxonomy_ExtractTags_RespectsWordBoundaries(t *testing.T) {
	tax := mustDefaultTaxonomy(t)

	// "navigational" must not count as "nav"; "suvs" is not "suv"
	assert.Empty(t, tax.ExtractTags("navigational charts for suvs"))
	assert.Equal(t, []string{"navigation"}, tax.ExtractTags("Built-in nav."))
}
