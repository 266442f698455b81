package retrieve

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Aman-CERP/autowriter/internal/chunk"
)

// Filters restricts retrieval to chunks whose metadata equals every
// non-null filter value. Null values and an empty set pass everything.
type Filters map[string]chunk.Value

// Active returns the number of non-null filter values.
func (f Filters) Active() int {
	n := 0
	for _, v := range f {
		if !v.IsNull() {
			n++
		}
	}
	return n
}

// Matches reports whether md satisfies every non-null filter. Values must
// match in kind as well as payload: the number 2021 does not match "2021".
func (f Filters) Matches(md chunk.Metadata) bool {
	for key, want := range f {
		if want.IsNull() {
			continue
		}
		if !md.Get(key).Equal(want) {
			return false
		}
	}
	return true
}

// FiltersFromAny converts decoded JSON (or caller fields) into Filters.
func FiltersFromAny(m map[string]any) (Filters, error) {
	f := make(Filters, len(m))
	for k, raw := range m {
		v, err := chunk.ValueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", k, err)
		}
		f[k] = v
	}
	return f, nil
}

// ParseFilter parses a CLI filter of the form key=value. Integral and
// decimal literals become numbers, "null" becomes a null value, anything
// else is a string.
func ParseFilter(s string) (string, chunk.Value, error) {
	key, raw, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", chunk.Value{}, fmt.Errorf("filter %q: expected key=value", s)
	}
	raw = strings.TrimSpace(raw)
	if raw == "null" {
		return key, chunk.NullValue(), nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return key, chunk.NumberValue(n), nil
	}
	return key, chunk.StringValue(raw), nil
}
