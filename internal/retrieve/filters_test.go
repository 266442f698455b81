package retrieve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/autowriter/internal/chunk"
)

func TestFilters_Matches(t *testing.T) {
	md := chunk.Metadata{
		chunk.KeyMake:  chunk.StringValue("Toyota"),
		chunk.KeyYear:  chunk.IntValue(2021),
		chunk.KeyTrim:  chunk.NullValue(),
		"custom_field": chunk.StringValue("x"),
	}

	tests := []struct {
		name    string
		filters Filters
		want    bool
	}{
		{"empty", nil, true},
		{"equal string", Filters{chunk.KeyMake: chunk.StringValue("Toyota")}, true},
		{"different string", Filters{chunk.KeyMake: chunk.StringValue("Honda")}, false},
		{"case sensitive", Filters{chunk.KeyMake: chunk.StringValue("toyota")}, false},
		{"equal number", Filters{chunk.KeyYear: chunk.IntValue(2021)}, true},
		{"number as string", Filters{chunk.KeyYear: chunk.StringValue("2021")}, false},
		{"null filter", Filters{chunk.KeyModel: chunk.NullValue()}, true},
		{"filter on null metadata", Filters{chunk.KeyTrim: chunk.StringValue("XLE")}, false},
		{"filter on missing key", Filters{chunk.KeyRegion: chunk.StringValue("GCC")}, false},
		{"unknown key", Filters{"custom_field": chunk.StringValue("x")}, true},
		{"all must match", Filters{
			chunk.KeyMake: chunk.StringValue("Toyota"),
			chunk.KeyYear: chunk.IntValue(2020),
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filters.Matches(md))
		})
	}
}

func TestFilters_Active(t *testing.T) {
	f := Filters{
		chunk.KeyMake: chunk.StringValue("Toyota"),
		chunk.KeyTrim: chunk.NullValue(),
	}
	assert.Equal(t, 1, f.Active())
	assert.Zero(t, Filters(nil).Active())
}

func TestFiltersFromAny(t *testing.T) {
	f, err := FiltersFromAny(map[string]any{
		"make": "Toyota",
		"year": float64(2021),
		"trim": nil,
	})
	require.NoError(t, err)
	assert.True(t, f["make"].Equal(chunk.StringValue("Toyota")))
	assert.True(t, f["year"].Equal(chunk.IntValue(2021)))
	assert.True(t, f["trim"].IsNull())

	_, err = FiltersFromAny(map[string]any{"make": []any{"a"}})
	assert.Error(t, err)
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		key     string
		want    chunk.Value
		wantErr bool
	}{
		{in: "make=Toyota", key: "make", want: chunk.StringValue("Toyota")},
		{in: "year=2021", key: "year", want: chunk.IntValue(2021)},
		{in: " trim = null ", key: "trim", want: chunk.NullValue()},
		{in: "model=Land Cruiser", key: "model", want: chunk.StringValue("Land Cruiser")},
		{in: "novalue", wantErr: true},
		{in: "=x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			key, v, err := ParseFilter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.key, key)
			assert.True(t, tt.want.Equal(v), "got %v", v)
		})
	}
}
