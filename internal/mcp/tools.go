package mcp

import (
	"github.com/Aman-CERP/autowriter/internal/chunk"
	"github.com/Aman-CERP/autowriter/internal/generate"
	"github.com/Aman-CERP/autowriter/internal/retrieve"
)

// Tool names.
const (
	ToolRetrieveEvidence = "retrieve_evidence"
	ToolGenerateListing  = "generate_listing"
	ToolAutowriteListing = "autowrite_listing"
	ToolIndexStatus      = "index_status"
)

// RetrieveInput defines the input schema for retrieve_evidence.
type RetrieveInput struct {
	Query   string         `json:"query" jsonschema:"what to look for in the brochures, e.g. 'Camry 2018 SE safety features'"`
	Filters map[string]any `json:"filters,omitempty" jsonschema:"exact metadata matches: make, model, year, trim, region"`
	K       int            `json:"k,omitempty" jsonschema:"number of chunks to return, default 6"`
}

// EvidenceOutput is one retrieved brochure chunk.
type EvidenceOutput struct {
	ChunkID  string         `json:"chunk_id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// RetrieveOutput defines the output schema for retrieve_evidence.
type RetrieveOutput struct {
	Query  string           `json:"query"`
	Chunks []EvidenceOutput `json:"chunks"`
}

// EvidenceInput is caller-supplied evidence for generate_listing.
type EvidenceInput struct {
	ChunkID  string         `json:"chunk_id" jsonschema:"id of the chunk, as returned by retrieve_evidence"`
	Text     string         `json:"text" jsonschema:"chunk text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// GenerateInput defines the input schema for generate_listing.
type GenerateInput struct {
	Highlights string          `json:"highlights" jsonschema:"seller highlights in free text"`
	Fields     map[string]any  `json:"fields,omitempty" jsonschema:"known vehicle fields such as make, model, year"`
	Evidence   []EvidenceInput `json:"evidence,omitempty" jsonschema:"brochure chunks to ground the copy in"`
	Tone       string          `json:"tone,omitempty" jsonschema:"writing tone, default premium_clean"`
	Languages  []string        `json:"languages,omitempty" jsonschema:"output languages, default en and ar"`
}

// AutowriteInput defines the input schema for autowrite_listing.
type AutowriteInput struct {
	Highlights string         `json:"highlights" jsonschema:"seller highlights in free text"`
	Fields     map[string]any `json:"fields,omitempty" jsonschema:"known vehicle fields; these win over detected values"`
}

// EvidenceNoteOutput ties a claim to a chunk.
type EvidenceNoteOutput struct {
	ChunkID string `json:"chunk_id"`
	Note    string `json:"note"`
}

// ListingOutput defines the output schema for generate_listing and
// autowrite_listing.
type ListingOutput struct {
	DescriptionParagraph string               `json:"description_paragraph"`
	BulletHighlights     []string             `json:"bullet_highlights"`
	Keywords             []string             `json:"keywords"`
	Warnings             []string             `json:"warnings"`
	DetectedEntities     map[string]any       `json:"detected_entities"`
	Evidence             []EvidenceNoteOutput `json:"evidence"`
	Source               string               `json:"source,omitempty" jsonschema:"generated or fallback"`
	Reason               string               `json:"reason,omitempty" jsonschema:"why the fallback was used"`
}

// IndexStatusInput defines the input schema for index_status (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for index_status.
type IndexStatusOutput struct {
	Ready      bool           `json:"ready"`
	DataDir    string         `json:"data_dir"`
	Chunks     int            `json:"chunks"`
	Dimensions int            `json:"dimensions"`
	EmbedModel string         `json:"embed_model,omitempty"`
	Backend    string         `json:"backend,omitempty"`
	Complete   bool           `json:"complete"`
	UpdatedAt  string         `json:"updated_at,omitempty"`
	LoadedAt   string         `json:"loaded_at,omitempty"`
	Error      string         `json:"error,omitempty"`
	Generation GenerationInfo `json:"generation"`
}

// GenerationInfo describes the generation backend.
type GenerationInfo struct {
	Configured bool   `json:"configured"`
	Backend    string `json:"backend,omitempty"`
	Model      string `json:"model,omitempty"`
	Breaker    string `json:"breaker,omitempty" jsonschema:"circuit breaker state: closed, open or half-open"`
}

func metadataMap(md chunk.Metadata) map[string]any {
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v.Any()
	}
	return out
}

func toEvidenceOutputs(results []retrieve.Evidence) []EvidenceOutput {
	out := make([]EvidenceOutput, 0, len(results))
	for _, ev := range results {
		out = append(out, EvidenceOutput{
			ChunkID:  ev.ChunkID,
			Text:     ev.Text,
			Metadata: metadataMap(ev.Metadata),
			Score:    float64(ev.Score),
		})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ToListingOutput flattens an Output for structured tool results.
func ToListingOutput(o *generate.Output) ListingOutput {
	entities := make(map[string]any, len(generate.EntityNames))
	for _, name := range generate.EntityNames {
		entities[name] = o.DetectedEntities.Field(name).Any()
	}
	notes := make([]EvidenceNoteOutput, 0, len(o.Evidence))
	for _, n := range o.Evidence {
		notes = append(notes, EvidenceNoteOutput{ChunkID: n.ChunkID, Note: n.Note})
	}
	return ListingOutput{
		DescriptionParagraph: o.DescriptionParagraph,
		BulletHighlights:     nonNil(o.BulletHighlights),
		Keywords:             nonNil(o.Keywords),
		Warnings:             nonNil(o.Warnings),
		DetectedEntities:     entities,
		Evidence:             notes,
	}
}

func toRetrieveEvidence(in []EvidenceInput) ([]retrieve.Evidence, error) {
	out := make([]retrieve.Evidence, 0, len(in))
	for i, ev := range in {
		if ev.ChunkID == "" {
			return nil, NewInvalidParamsError("evidence[" + itoa(i) + "].chunk_id is required")
		}
		md := chunk.Metadata{}
		for k, raw := range ev.Metadata {
			v, err := chunk.ValueOf(raw)
			if err != nil {
				return nil, NewInvalidParamsError("evidence[" + itoa(i) + "].metadata: " + err.Error())
			}
			md[k] = v
		}
		out = append(out, retrieve.Evidence{ChunkID: ev.ChunkID, Text: ev.Text, Metadata: md})
	}
	return out, nil
}
