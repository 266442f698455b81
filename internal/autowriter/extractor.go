package autowriter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Aman-CERP/autowriter/internal/chunk"
	"github.com/Aman-CERP/autowriter/internal/generate"
)

// bounded wraps a pattern so that it only matches between non-letters.
// Go's \b is ASCII-only, which would miss Arabic terms.
func bounded(pattern string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(` + pattern + `)(?:[^\p{L}\p{N}]|$)`)
}

var (
	yearRe         = regexp.MustCompile(`(?:^|[^\d])((?:19|20)\d{2})(?:[^\d]|$)`)
	mileageRe      = regexp.MustCompile(`(?i)((?:\d{1,3}[, ]?)+)\s*(kilometers|kilometres|km|miles|mi|كيلومتر|كم|ميل)(?:[^\p{L}]|$)`)
	transmissionRe = bounded(`automatic|auto|manual|cvt|dct|dual clutch|steptronic|steptonic|tiptronic|أوتوماتيك|اوتوماتيك|عادي|يدوي`)
	engineRe       = bounded(`\d\.\d\s*l|v6|v8|v10|v12|i4|i6|turbo|supercharged|hybrid|electric`)
	conditionRe    = bounded(`excellent|very good|good|fair|poor|clean|mint|like new|ممتاز|جيد جدا|جيد|مقبول`)
)

// ExtractEntities pulls vehicle attributes out of free-text highlights.
// Make, model and trim are left null; see Catalog.Detect.
func ExtractEntities(text string) generate.Entities {
	e := generate.Entities{}

	if m := yearRe.FindStringSubmatch(text); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil {
			e.Year = chunk.IntValue(y)
		}
	}
	if m := mileageRe.FindStringSubmatch(text); m != nil {
		digits := strings.Join(strings.Fields(m[1]), "")
		e.Mileage = chunk.StringValue(digits + " " + m[2])
	}
	if m := transmissionRe.FindStringSubmatch(text); m != nil {
		e.Transmission = chunk.StringValue(m[1])
	}
	if m := engineRe.FindStringSubmatch(text); m != nil {
		e.Engine = chunk.StringValue(m[1])
	}
	if m := conditionRe.FindStringSubmatch(text); m != nil {
		e.Condition = chunk.StringValue(m[1])
	}
	return e
}

// MergeFields overlays caller-supplied fields on e. Non-null caller values
// win; a numeric string for year becomes a number.
func MergeFields(e generate.Entities, fields map[string]any) generate.Entities {
	for _, name := range generate.EntityNames {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		v, err := chunk.ValueOf(raw)
		if err != nil || v.IsNull() {
			continue
		}
		if s, isStr := v.Str(); isStr {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			v = chunk.StringValue(s)
			if name == "year" {
				y, err := strconv.Atoi(s)
				if err != nil {
					continue
				}
				v = chunk.IntValue(y)
			}
		}
		*e.Field(name) = v
	}
	return e
}

// EntityMap renders e as plain values, suitable for JSON prompts.
func EntityMap(e generate.Entities) map[string]any {
	m := make(map[string]any, len(generate.EntityNames))
	for _, name := range generate.EntityNames {
		m[name] = e.Field(name).Any()
	}
	return m
}
