package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Aman-CERP/autowriter/internal/embed"
	"github.com/Aman-CERP/autowriter/internal/generate"
	"github.com/Aman-CERP/autowriter/internal/store"
)

// ProbeTimeout bounds each backend probe.
var ProbeTimeout = 10 * time.Second

// CheckEmbedder embeds a short probe text. Indexing and retrieval both
// depend on it, so a failure is critical.
func (c *Checker) CheckEmbedder(ctx context.Context, e embed.Embedder) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: true,
		Details:  e.ModelName(),
	}

	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	start := time.Now()
	vec, err := e.Embed(ctx, "4x4 with leather seats")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("embedding probe failed: %v", err)
		return result
	}
	if d := e.Dimensions(); d > 0 && len(vec) != d {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("probe returned %d dimensions, expected %d", len(vec), d)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s, %d dims (%s)", e.ModelName(), len(vec), time.Since(start).Round(time.Millisecond))
	return result
}

// CheckGenerator reports whether the generation backend is reachable.
// Listings fall back to rule-based copy without it, so it never fails.
func (c *Checker) CheckGenerator(ctx context.Context, name string, a generate.Availability) CheckResult {
	result := CheckResult{
		Name:    "generator",
		Details: name,
	}
	if a == nil {
		result.Status = StatusWarn
		result.Message = "not configured; listings use the rule-based fallback"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	if !a.Available(ctx) {
		result.Status = StatusWarn
		result.Message = name + " is offline; listings use the rule-based fallback"
		return result
	}
	result.Status = StatusPass
	result.Message = name + " is ready"
	return result
}

// CheckIndex inspects the build manifest in dataDir. A missing or partial
// index is a warning since ingest creates it; a model mismatch fails
// because retrieval would reject the index.
func (c *Checker) CheckIndex(dataDir string, e embed.Embedder) CheckResult {
	result := CheckResult{
		Name:     "index",
		Required: true,
	}
	paths := store.Paths{Dir: dataDir}

	if !paths.Exists() {
		result.Status = StatusWarn
		result.Message = "no index yet"
		result.Details = "Run 'autowriter ingest --source DIR' to build one"
		return result
	}

	m, err := store.ReadManifest(paths.Manifest())
	switch {
	case errors.Is(err, os.ErrNotExist):
		result.Status = StatusWarn
		result.Message = "index has no manifest; model cannot be verified"
		return result
	case err != nil:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("unreadable manifest: %v", err)
		return result
	}

	if !m.Complete {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("build incomplete (%d/%d vectors)", m.Vectors, m.Chunks)
		result.Details = "Run 'autowriter index --resume' to finish it"
		return result
	}
	if e != nil && m.EmbedModel != "" && m.EmbedModel != e.ModelName() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("built with %s but %s is configured", m.EmbedModel, e.ModelName())
		result.Details = "Rebuild with 'autowriter index --force' or change embeddings.model"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d vectors, %s", m.Vectors, m.EmbedModel)
	return result
}
