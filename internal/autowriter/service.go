// Package autowriter writes auction listings from seller highlights.
//
// Service.Write extracts entities from the highlights, retrieves brochure
// evidence, asks the generator for a listing and validates it. Whenever
// any step fails the listing is written by the rule-based fallback, so a
// request with highlights always gets a usable record.
package autowriter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/autowriter/internal/chunk"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/generate"
	"github.com/Aman-CERP/autowriter/internal/retrieve"
	"github.com/Aman-CERP/autowriter/internal/telemetry"
)

// Fallback reasons.
const (
	ReasonRetrievalFailed  = "retrieval_failed"
	ReasonNoEvidence       = "no_evidence"
	ReasonGenerationFailed = "generation_failed"
	ReasonSchemaViolation  = "schema_violation"
	ReasonRejected         = "rejected_"
)

// Retriever finds brochure evidence.
type Retriever interface {
	Retrieve(ctx context.Context, query string, filters retrieve.Filters, k int) ([]retrieve.Evidence, error)
}

// Generator writes a listing from evidence.
type Generator interface {
	Generate(ctx context.Context, req generate.Request) (*generate.Output, error)
	Name() string
	Model() string
}

// GenerationRecorder receives one event per Write.
type GenerationRecorder interface {
	GenerationCompleted(ctx context.Context, ev telemetry.GenerationEvent)
}

// Result is a validated listing plus how it was produced.
type Result struct {
	generate.Output
	Source telemetry.Source `json:"source"`
	Reason string           `json:"reason,omitempty"`
}

// Config wires a Service.
type Config struct {
	Retriever Retriever
	Generator Generator // optional; without one every listing is a fallback
	Recorder  GenerationRecorder
	Taxonomy  *Taxonomy
	Catalog   *Catalog
	K         int
	Tone      string
	Languages []string
}

// Service writes listings.
type Service struct {
	retriever Retriever
	generator Generator
	recorder  GenerationRecorder
	taxonomy  *Taxonomy
	catalog   *Catalog
	k         int
	tone      string
	languages []string
}

// NewService creates a Service, loading the embedded taxonomy and catalog
// when none are given.
func NewService(cfg Config) (*Service, error) {
	if cfg.Retriever == nil {
		return nil, awerrors.ConfigError("autowriter requires a retriever", nil)
	}
	var err error
	if cfg.Taxonomy == nil {
		if cfg.Taxonomy, err = DefaultTaxonomy(); err != nil {
			return nil, awerrors.ConfigError("load taxonomy", err)
		}
	}
	if cfg.Catalog == nil {
		if cfg.Catalog, err = DefaultCatalog(); err != nil {
			return nil, awerrors.ConfigError("load vehicle catalog", err)
		}
	}
	if cfg.K <= 0 {
		cfg.K = retrieve.DefaultK
	}
	if cfg.Tone == "" {
		cfg.Tone = generate.DefaultTone
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = generate.DefaultLanguages
	}
	return &Service{
		retriever: cfg.Retriever,
		generator: cfg.Generator,
		recorder:  cfg.Recorder,
		taxonomy:  cfg.Taxonomy,
		catalog:   cfg.Catalog,
		k:         cfg.K,
		tone:      cfg.Tone,
		languages: cfg.Languages,
	}, nil
}

// Entities extracts and merges the entities Write would use.
func (s *Service) Entities(highlights string, fields map[string]any) generate.Entities {
	e := ExtractEntities(highlights)
	if makeName, model := s.catalog.Detect(highlights); makeName != "" {
		e.Make = chunk.StringValue(makeName)
		if model != "" {
			e.Model = chunk.StringValue(model)
		}
	}
	return MergeFields(e, fields)
}

// Filters builds retrieval filters from entities.
func Filters(e generate.Entities) retrieve.Filters {
	return retrieve.Filters{
		chunk.KeyMake:  e.Make,
		chunk.KeyModel: e.Model,
		chunk.KeyYear:  e.Year,
		chunk.KeyTrim:  e.Trim,
	}
}

// Write produces a listing for highlights. Only invalid input and
// cancellation are returned as errors.
func (s *Service) Write(ctx context.Context, highlights string, fields map[string]any) (*Result, error) {
	highlights = strings.TrimSpace(highlights)
	if highlights == "" {
		return nil, awerrors.ValidationError("highlights are required", nil)
	}
	start := time.Now()
	entities := s.Entities(highlights, fields)

	out, reason, code := s.generated(ctx, highlights, fields, entities)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Source: telemetry.SourceGenerated}
	if out == nil {
		out = Fallback(highlights, entities, s.taxonomy)
		res.Source = telemetry.SourceFallback
		res.Reason = reason
		slog.Info("listing_fallback", slog.String("reason", reason))
	}
	res.Output = *out

	s.record(ctx, start, res, code)
	return res, nil
}

// generated returns a validated listing, or nil with the reason it could
// not produce one and the error code behind it.
func (s *Service) generated(ctx context.Context, highlights string, fields map[string]any, entities generate.Entities) (*generate.Output, string, string) {
	evidence, err := s.retriever.Retrieve(ctx, highlights, Filters(entities), s.k)
	if err != nil {
		slog.Warn("listing_retrieval_failed",
			slog.String("code", awerrors.GetCode(err)),
			slog.String("error", err.Error()))
		return nil, ReasonRetrievalFailed, awerrors.GetCode(err)
	}
	if len(evidence) == 0 || s.generator == nil {
		return nil, ReasonNoEvidence, ""
	}

	promptFields := EntityMap(entities)
	for k, v := range fields {
		if _, known := promptFields[k]; !known {
			promptFields[k] = v
		}
	}
	out, err := s.generator.Generate(ctx, generate.Request{
		Highlights: highlights,
		Fields:     promptFields,
		Evidence:   evidence,
		Tone:       s.tone,
		Languages:  s.languages,
	})
	if err != nil {
		if errors.Is(err, awerrors.ErrSchemaViolation) {
			return nil, ReasonSchemaViolation, awerrors.GetCode(err)
		}
		return nil, ReasonGenerationFailed, awerrors.GetCode(err)
	}

	valid, err := Validate(out, highlights, entities, s.taxonomy)
	if err != nil {
		var rej *RejectedError
		if errors.As(err, &rej) {
			slog.Info("listing_rejected", slog.String("reason", rej.Reason), slog.Int("got", rej.Got))
			return nil, ReasonRejected + rej.Reason, ReasonRejected + rej.Reason
		}
		return nil, ReasonGenerationFailed, awerrors.GetCode(err)
	}
	return valid, "", ""
}

func (s *Service) record(ctx context.Context, start time.Time, res *Result, code string) {
	if s.recorder == nil {
		return
	}
	ev := telemetry.GenerationEvent{
		Success:   res.Source == telemetry.SourceGenerated,
		Source:    res.Source,
		Reason:    res.Reason,
		ErrorCode: code,
		Duration:  time.Since(start),
		Timestamp: start,
	}
	if s.generator != nil && res.Reason != ReasonRetrievalFailed && res.Reason != ReasonNoEvidence {
		ev.Backend = s.generator.Name()
		ev.Model = s.generator.Model()
	}
	s.recorder.GenerationCompleted(ctx, ev)
}
