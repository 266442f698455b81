package generate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Aman-CERP/autowriter/internal/chunk"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
)

// Output is a validated listing record.
type Output struct {
	DescriptionParagraph string         `json:"description_paragraph"`
	BulletHighlights     []string       `json:"bullet_highlights"`
	Keywords             []string       `json:"keywords"`
	Warnings             []string       `json:"warnings"`
	DetectedEntities     Entities       `json:"detected_entities"`
	Evidence             []EvidenceNote `json:"evidence"`
}

// Entities are the vehicle attributes the model detected. Each is a
// string, a number or null; Year is a number or null.
type Entities struct {
	Make         chunk.Value `json:"make"`
	Model        chunk.Value `json:"model"`
	Year         chunk.Value `json:"year"`
	Trim         chunk.Value `json:"trim"`
	Mileage      chunk.Value `json:"mileage"`
	Transmission chunk.Value `json:"transmission"`
	Engine       chunk.Value `json:"engine"`
	Condition    chunk.Value `json:"condition"`
}

// EntityNames lists the detected_entities keys in schema order.
var EntityNames = []string{"make", "model", "year", "trim", "mileage", "transmission", "engine", "condition"}

// Field returns a pointer to the entity named name, or nil.
func (e *Entities) Field(name string) *chunk.Value {
	switch name {
	case "make":
		return &e.Make
	case "model":
		return &e.Model
	case "year":
		return &e.Year
	case "trim":
		return &e.Trim
	case "mileage":
		return &e.Mileage
	case "transmission":
		return &e.Transmission
	case "engine":
		return &e.Engine
	case "condition":
		return &e.Condition
	}
	return nil
}

// EvidenceNote ties a claim to a retrieved chunk.
type EvidenceNote struct {
	ChunkID string `json:"chunk_id"`
	Note    string `json:"note"`
}

// schemaDescription is shown to the model verbatim.
var schemaDescription = map[string]any{
	"description_paragraph": "string",
	"bullet_highlights":     []string{"string"},
	"keywords":              []string{"string"},
	"warnings":              []string{"string"},
	"detected_entities": map[string]string{
		"make":         "string|null",
		"model":        "string|null",
		"year":         "number|null",
		"trim":         "string|null",
		"mileage":      "string|null",
		"transmission": "string|null",
		"engine":       "string|null",
		"condition":    "string|null",
	},
	"evidence": []map[string]string{{"chunk_id": "string", "note": "string"}},
}

// SchemaJSON returns the output schema as indented JSON.
func SchemaJSON() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	_ = enc.Encode(schemaDescription)
	return strings.TrimSpace(buf.String())
}

// ParseOutput decodes and validates a model response.
//
// Text that is not JSON at all is a GenerationUnavailable error. JSON that
// is missing a required field or carries an ill-typed one is a
// SchemaViolation. Unknown fields are ignored.
func ParseOutput(raw string) (*Output, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !json.Valid([]byte(raw)) {
		return nil, awerrors.GenerationUnavailable("model returned non-JSON output", nil).
			WithDetail("preview", preview(raw))
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil || top == nil {
		return nil, awerrors.SchemaViolation("output must be a JSON object")
	}

	out := &Output{}
	var err error
	if out.DescriptionParagraph, err = decodeString(top, "description_paragraph"); err != nil {
		return nil, err
	}
	if out.BulletHighlights, err = decodeStrings(top, "bullet_highlights"); err != nil {
		return nil, err
	}
	if out.Keywords, err = decodeStrings(top, "keywords"); err != nil {
		return nil, err
	}
	if out.Warnings, err = decodeStrings(top, "warnings"); err != nil {
		return nil, err
	}
	if out.DetectedEntities, err = decodeEntities(top); err != nil {
		return nil, err
	}
	if out.Evidence, err = decodeEvidence(top); err != nil {
		return nil, err
	}
	return out, nil
}

func field(obj map[string]json.RawMessage, key, path string) (json.RawMessage, error) {
	raw, ok := obj[key]
	if !ok {
		return nil, awerrors.SchemaViolation(fmt.Sprintf("missing required field %q", path)).
			WithDetail("field", path)
	}
	if isNull(raw) {
		return nil, awerrors.SchemaViolation(fmt.Sprintf("field %q must not be null", path)).
			WithDetail("field", path)
	}
	return raw, nil
}

func illTyped(path, want string) error {
	return awerrors.SchemaViolation(fmt.Sprintf("field %q must be %s", path, want)).
		WithDetail("field", path)
}

func decodeString(obj map[string]json.RawMessage, key string) (string, error) {
	raw, err := field(obj, key, key)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", illTyped(key, "a string")
	}
	return s, nil
}

func decodeStrings(obj map[string]json.RawMessage, key string) ([]string, error) {
	raw, err := field(obj, key, key)
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, illTyped(key, "an array of strings")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if isNull(item) || json.Unmarshal(item, &s) != nil {
			return nil, illTyped(key, "an array of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

// decodeEntities accepts a missing entity key as null.
func decodeEntities(obj map[string]json.RawMessage) (Entities, error) {
	var e Entities
	raw, err := field(obj, "detected_entities", "detected_entities")
	if err != nil {
		return e, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return e, illTyped("detected_entities", "an object")
	}
	for _, name := range EntityNames {
		item, ok := fields[name]
		if !ok {
			continue
		}
		path := "detected_entities." + name
		var v chunk.Value
		if err := json.Unmarshal(item, &v); err != nil {
			return e, illTyped(path, "a string, number or null")
		}
		if name == "year" && v.Kind() == chunk.KindString {
			return e, illTyped(path, "a number or null")
		}
		*e.Field(name) = v
	}
	return e, nil
}

func decodeEvidence(obj map[string]json.RawMessage) ([]EvidenceNote, error) {
	raw, err := field(obj, "evidence", "evidence")
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, illTyped("evidence", "an array")
	}
	out := make([]EvidenceNote, 0, len(items))
	for i, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			return nil, illTyped(fmt.Sprintf("evidence[%d]", i), "an object")
		}
		id, err := decodeString(fields, "chunk_id")
		if err != nil {
			return nil, prefixed(err, fmt.Sprintf("evidence[%d]", i))
		}
		note, err := decodeString(fields, "note")
		if err != nil {
			return nil, prefixed(err, fmt.Sprintf("evidence[%d]", i))
		}
		out = append(out, EvidenceNote{ChunkID: id, Note: note})
	}
	return out, nil
}

func prefixed(err error, prefix string) error {
	if ae, ok := awerrors.As(err); ok {
		return awerrors.SchemaViolation(prefix + ": " + ae.Message)
	}
	return err
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > 120 {
		return string(r[:120]) + "..."
	}
	return s
}
