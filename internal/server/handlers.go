package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Aman-CERP/autowriter/internal/chunk"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/generate"
	"github.com/Aman-CERP/autowriter/internal/retrieve"
	"github.com/Aman-CERP/autowriter/internal/telemetry"
)

type retrieveRequest struct {
	Query   string         `json:"query"`
	Filters map[string]any `json:"filters"`
	K       *int           `json:"k"`
}

type chunkResponse struct {
	ChunkID  string         `json:"chunk_id"`
	Text     string         `json:"text"`
	Metadata chunk.Metadata `json:"metadata"`
}

type retrieveResponse struct {
	Chunks []chunkResponse `json:"chunks"`
}

type evidenceInput struct {
	ChunkID  string         `json:"chunk_id"`
	Text     string         `json:"text"`
	Metadata chunk.Metadata `json:"metadata"`
}

type generateRequest struct {
	Highlights string          `json:"highlights"`
	Fields     map[string]any  `json:"fields"`
	Evidence   []evidenceInput `json:"evidence"`
	Tone       string          `json:"tone"`
	Languages  []string        `json:"languages"`
}

type autowriteRequest struct {
	Highlights string         `json:"highlights"`
	Fields     map[string]any `json:"fields"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	k := s.cfg.K
	if req.K != nil {
		k = *req.K
	}
	filters, err := retrieve.FiltersFromAny(req.Filters)
	if err != nil {
		fail(w, r, awerrors.ValidationError(err.Error(), err))
		return
	}

	results, err := s.cfg.Retriever.Retrieve(r.Context(), req.Query, filters, k)
	if err != nil {
		fail(w, r, err)
		return
	}

	resp := retrieveResponse{Chunks: make([]chunkResponse, 0, len(results))}
	for _, ev := range results {
		md := ev.Metadata
		if md == nil {
			md = chunk.Metadata{}
		}
		resp.Chunks = append(resp.Chunks, chunkResponse{ChunkID: ev.ChunkID, Text: ev.Text, Metadata: md})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Highlights) == "" {
		fail(w, r, awerrors.ValidationError("highlights must not be empty", nil))
		return
	}
	if s.cfg.Generator == nil {
		fail(w, r, awerrors.GenerationUnavailable("no generation backend configured", nil))
		return
	}

	evidence := make([]retrieve.Evidence, 0, len(req.Evidence))
	for i, ev := range req.Evidence {
		if ev.ChunkID == "" {
			fail(w, r, awerrors.ValidationError(fmt.Sprintf("evidence[%d].chunk_id is required", i), nil))
			return
		}
		evidence = append(evidence, retrieve.Evidence{ChunkID: ev.ChunkID, Text: ev.Text, Metadata: ev.Metadata})
	}

	start := time.Now()
	out, err := s.cfg.Generator.Generate(r.Context(), generate.Request{
		Highlights: req.Highlights,
		Fields:     req.Fields,
		Evidence:   evidence,
		Tone:       req.Tone,
		Languages:  req.Languages,
	})
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.GenerationCompleted(r.Context(), s.cfg.Generator.Event(start, err, telemetry.SourceDirect))
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAutowrite(w http.ResponseWriter, r *http.Request) {
	var req autowriteRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	res, err := s.cfg.Writer.Write(r.Context(), req.Highlights, req.Fields)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Retriever.Ready(r.Context()); err != nil {
		if _, ok := awerrors.As(err); !ok {
			err = awerrors.IndexUnavailable("index not loadable", err)
		}
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decode reads a JSON body of at most maxBodyBytes into v. Unknown fields
// are ignored.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return awerrors.ValidationError("request body too large", err)
		case errors.Is(err, io.EOF):
			return awerrors.ValidationError("request body is empty", err)
		default:
			return awerrors.ValidationError("malformed JSON body: "+err.Error(), err)
		}
	}
	return nil
}
