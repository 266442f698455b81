package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/autowriter/internal/chunk"
	"github.com/Aman-CERP/autowriter/internal/retrieve"
)

func TestParseFields(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{"empty", nil, map[string]any{}, false},
		{"string and number", []string{"trim=GXR", "year=2024"}, map[string]any{"trim": "GXR", "year": float64(2024)}, false},
		{"null", []string{"mileage=null"}, map[string]any{"mileage": nil}, false},
		{"missing equals", []string{"trim"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFields(tt.pairs)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{"make=Toyota", "year=2024"})

	require.NoError(t, err)
	assert.Equal(t, retrieve.Filters{
		"make": chunk.StringValue("Toyota"),
		"year": chunk.NumberValue(2024),
	}, got)

	_, err = parseFilters([]string{"=Toyota"})
	assert.Error(t, err)
}

func TestRenderMarkdown(t *testing.T) {
	// Given: non-TTY output
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer

	// When: rendering a small document
	err := renderMarkdown(&buf, "## Listing\n\nA capable SUV.\n\n- Twin-turbo V6\n")

	// Then: the text survives without escape codes
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Listing")
	assert.Contains(t, buf.String(), "Twin-turbo V6")
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, printJSON(&buf, map[string]int{"k": 6}))

	assert.Equal(t, "{\n  \"k\": 6\n}\n", buf.String())
}
