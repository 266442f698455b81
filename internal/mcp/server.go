package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/autowriter/internal/autowriter"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/generate"
	"github.com/Aman-CERP/autowriter/internal/retrieve"
	"github.com/Aman-CERP/autowriter/internal/store"
	"github.com/Aman-CERP/autowriter/internal/telemetry"
	"github.com/Aman-CERP/autowriter/pkg/version"
)

const (
	serverName = "autowriter"
	maxK       = 50
)

// Retriever finds brochure evidence.
type Retriever interface {
	Retrieve(ctx context.Context, query string, filters retrieve.Filters, k int) ([]retrieve.Evidence, error)
}

// AssetSource exposes the loaded index. *retrieve.Loader satisfies it.
type AssetSource interface {
	Get(ctx context.Context) (*retrieve.Assets, error)
	Paths() store.Paths
}

// Generator writes a listing from evidence.
type Generator interface {
	Generate(ctx context.Context, req generate.Request) (*generate.Output, error)
	Name() string
	Model() string
}

// ListingWriter is the full autowrite pipeline.
type ListingWriter interface {
	Write(ctx context.Context, highlights string, fields map[string]any) (*autowriter.Result, error)
}

// GenerationRecorder receives events for direct generate_listing calls.
type GenerationRecorder interface {
	GenerationCompleted(ctx context.Context, ev telemetry.GenerationEvent)
}

type breakerReporter interface {
	BreakerState() awerrors.State
}

// Config wires a Server.
type Config struct {
	Retriever Retriever
	Assets    AssetSource
	Generator Generator // optional
	Writer    ListingWriter
	Recorder  GenerationRecorder
	K         int
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// Server is the MCP server. It bridges MCP clients with the retriever,
// the generator and the listing service.
type Server struct {
	mcp       *mcp.Server
	retriever Retriever
	assets    AssetSource
	generator Generator
	writer    ListingWriter
	recorder  GenerationRecorder
	k         int
	logger    *slog.Logger
}

var toolInfos = []ToolInfo{
	{
		Name:        ToolRetrieveEvidence,
		Description: "Find vehicle brochure passages relevant to a query. Filters on make, model, year and trim narrow the search; when too few chunks match, the best unfiltered chunks are returned instead.",
	},
	{
		Name:        ToolGenerateListing,
		Description: "Write an auction listing (description, bullets, keywords, detected entities) from seller highlights and brochure evidence you supply. Fails rather than returning a partial record.",
	},
	{
		Name:        ToolAutowriteListing,
		Description: "Write a validated auction listing from seller highlights alone. Retrieves evidence itself and falls back to rule-based copy when generation is unavailable or rejected; always returns a record.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report whether the brochure index is loaded, how many chunks it holds, which embedding model built it and which generation backend is active.",
	},
}

// NewServer creates a new MCP server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if cfg.Assets == nil {
		return nil, errors.New("asset source is required")
	}
	if cfg.Writer == nil {
		return nil, errors.New("listing writer is required")
	}
	if cfg.K <= 0 {
		cfg.K = retrieve.DefaultK
	}

	s := &Server{
		retriever: cfg.Retriever,
		assets:    cfg.Assets,
		generator: cfg.Generator,
		writer:    cfg.Writer,
		recorder:  cfg.Recorder,
		k:         cfg.K,
		logger:    slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: serverName, Version: version.Version},
		nil,
	)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return serverName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), toolInfos...)
}

// CallTool invokes a tool by name with JSON-style arguments and returns
// its structured output.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolRetrieveEvidence:
		var in RetrieveInput
		if err := bindArgs(args, &in); err != nil {
			return nil, err
		}
		out, _, err := s.retrieveEvidence(ctx, in)
		return out, err
	case ToolGenerateListing:
		var in GenerateInput
		if err := bindArgs(args, &in); err != nil {
			return nil, err
		}
		out, _, err := s.generateListing(ctx, in)
		return out, err
	case ToolAutowriteListing:
		var in AutowriteInput
		if err := bindArgs(args, &in); err != nil {
			return nil, err
		}
		out, _, err := s.autowriteListing(ctx, in)
		return out, err
	case ToolIndexStatus:
		return s.indexStatus(ctx), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) retrieveEvidence(ctx context.Context, in RetrieveInput) (RetrieveOutput, []retrieve.Evidence, error) {
	if strings.TrimSpace(in.Query) == "" {
		return RetrieveOutput{}, nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	filters, err := retrieve.FiltersFromAny(in.Filters)
	if err != nil {
		return RetrieveOutput{}, nil, NewInvalidParamsError(err.Error())
	}
	k := clampK(in.K, s.k, maxK)

	start := time.Now()
	requestID := generateRequestID()
	results, err := s.retriever.Retrieve(ctx, in.Query, filters, k)
	if err != nil {
		s.logger.Warn("mcp_retrieve_failed",
			slog.String("request_id", requestID),
			slog.String("code", awerrors.GetCode(err)),
			slog.String("error", err.Error()))
		return RetrieveOutput{}, nil, MapError(err)
	}
	s.logger.Info("mcp_retrieve_completed",
		slog.String("request_id", requestID),
		slog.Int("k", k),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	return RetrieveOutput{Query: in.Query, Chunks: toEvidenceOutputs(results)}, results, nil
}

func (s *Server) generateListing(ctx context.Context, in GenerateInput) (ListingOutput, *generate.Output, error) {
	if strings.TrimSpace(in.Highlights) == "" {
		return ListingOutput{}, nil, NewInvalidParamsError("highlights parameter is required")
	}
	if s.generator == nil {
		return ListingOutput{}, nil, MapError(awerrors.GenerationUnavailable("no generation backend configured", nil))
	}
	evidence, err := toRetrieveEvidence(in.Evidence)
	if err != nil {
		return ListingOutput{}, nil, err
	}

	start := time.Now()
	out, err := s.generator.Generate(ctx, generate.Request{
		Highlights: in.Highlights,
		Fields:     in.Fields,
		Evidence:   evidence,
		Tone:       in.Tone,
		Languages:  in.Languages,
	})
	if s.recorder != nil {
		s.recorder.GenerationCompleted(ctx, telemetry.GenerationEvent{
			Backend:   s.generator.Name(),
			Model:     s.generator.Model(),
			Success:   err == nil,
			ErrorCode: awerrors.GetCode(err),
			Source:    telemetry.SourceDirect,
			Duration:  time.Since(start),
			Timestamp: start,
		})
	}
	if err != nil {
		return ListingOutput{}, nil, MapError(err)
	}
	return ToListingOutput(out), out, nil
}

func (s *Server) autowriteListing(ctx context.Context, in AutowriteInput) (ListingOutput, *autowriter.Result, error) {
	res, err := s.writer.Write(ctx, in.Highlights, in.Fields)
	if err != nil {
		return ListingOutput{}, nil, MapError(err)
	}
	out := ToListingOutput(&res.Output)
	out.Source = string(res.Source)
	out.Reason = res.Reason
	return out, res, nil
}

func (s *Server) indexStatus(ctx context.Context) *IndexStatusOutput {
	out := &IndexStatusOutput{DataDir: s.assets.Paths().Dir}

	if s.generator != nil {
		out.Generation = GenerationInfo{
			Configured: true,
			Backend:    s.generator.Name(),
			Model:      s.generator.Model(),
		}
		if b, ok := s.generator.(breakerReporter); ok {
			out.Generation.Breaker = b.BreakerState().String()
		}
	}

	a, err := s.assets.Get(ctx)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Ready = true
	out.Chunks = a.Count()
	out.Dimensions = a.Index.Dimensions()
	out.LoadedAt = a.LoadedAt.Format(time.RFC3339)
	if a.Embedder != nil {
		out.EmbedModel = a.Embedder.ModelName()
	}
	if m := a.Manifest; m != nil {
		out.Backend = string(m.Backend)
		out.Complete = m.Complete
		out.UpdatedAt = m.UpdatedAt.Format(time.RFC3339)
		if m.EmbedModel != "" {
			out.EmbedModel = m.EmbedModel
		}
	}
	return out
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolRetrieveEvidence, Description: toolInfos[0].Description}, s.mcpRetrieveHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolGenerateListing, Description: toolInfos[1].Description}, s.mcpGenerateHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolAutowriteListing, Description: toolInfos[2].Description}, s.mcpAutowriteHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexStatus, Description: toolInfos[3].Description}, s.mcpIndexStatusHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(toolInfos)))
}

func (s *Server) mcpRetrieveHandler(ctx context.Context, _ *mcp.CallToolRequest, in RetrieveInput) (*mcp.CallToolResult, RetrieveOutput, error) {
	out, results, err := s.retrieveEvidence(ctx, in)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}
	return textResult(FormatEvidence(in.Query, results)), out, nil
}

func (s *Server) mcpGenerateHandler(ctx context.Context, _ *mcp.CallToolRequest, in GenerateInput) (*mcp.CallToolResult, ListingOutput, error) {
	out, listing, err := s.generateListing(ctx, in)
	if err != nil {
		return nil, ListingOutput{}, err
	}
	return textResult(FormatListing(listing, "", "")), out, nil
}

func (s *Server) mcpAutowriteHandler(ctx context.Context, _ *mcp.CallToolRequest, in AutowriteInput) (*mcp.CallToolResult, ListingOutput, error) {
	out, res, err := s.autowriteListing(ctx, in)
	if err != nil {
		return nil, ListingOutput{}, err
	}
	return textResult(FormatListing(&res.Output, string(res.Source), res.Reason)), out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (*mcp.CallToolResult, *IndexStatusOutput, error) {
	return nil, s.indexStatus(ctx), nil
}

// Serve runs the server on the stdio transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_started", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_failed", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// bindArgs decodes loosely typed arguments into a tool input.
func bindArgs(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewInvalidParamsError("invalid arguments: " + err.Error())
	}
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
