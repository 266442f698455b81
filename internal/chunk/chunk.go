// Package chunk splits brochure text into overlapping word windows and
// defines the chunk record shared by the indexer and the retriever.
package chunk

import (
	"fmt"
	"maps"
	"strings"
)

// Defaults for word-window chunking.
const (
	DefaultMaxWords = 220
	DefaultOverlap  = 40
)

// Known metadata attribute names.
const (
	KeyMake       = "make"
	KeyModel      = "model"
	KeyYear       = "year"
	KeyTrim       = "trim"
	KeyRegion     = "region"
	KeyBrochureID = "brochure_id"
	KeyPage       = "page"
)

// Metadata maps attribute names to scalar values. Missing keys read as null.
type Metadata map[string]Value

// Get returns the value for key, or null when absent.
func (m Metadata) Get(key string) Value {
	return m[key]
}

// Clone returns a shallow copy of m. Values are immutable so this is a full copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	return maps.Clone(m)
}

// BaseMetadata returns the vehicle attributes every ingested chunk carries,
// all null until inferred.
func BaseMetadata() Metadata {
	return Metadata{
		KeyMake:   NullValue(),
		KeyModel:  NullValue(),
		KeyYear:   NullValue(),
		KeyTrim:   NullValue(),
		KeyRegion: NullValue(),
	}
}

// Chunk is an immutable excerpt of a source document.
type Chunk struct {
	ID       string   `json:"chunk_id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// ID returns the stable identifier for the seq-th chunk on a page.
// Page and seq are 1-based.
func ID(documentID string, page, seq int) string {
	return fmt.Sprintf("%s-p%d-c%d", documentID, page, seq)
}

// CleanText collapses runs of whitespace (including non-breaking spaces)
// into single spaces and trims the result.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
