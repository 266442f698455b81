package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const chunkScheme = "chunk://"

type chunkResource struct {
	ChunkID  string         `json:"chunk_id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// registerResources exposes every indexed chunk as chunk://{chunk_id}.
func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(
		&mcp.ResourceTemplate{
			Name:        "brochure_chunk",
			URITemplate: chunkScheme + "{chunk_id}",
			Description: "One indexed brochure chunk with its metadata",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.handleReadResource(ctx, req.Params.URI)
		},
	)
}

// handleReadResource returns the chunk named by a chunk:// URI as JSON.
func (s *Server) handleReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	id, ok := strings.CutPrefix(uri, chunkScheme)
	if !ok || id == "" {
		return nil, NewResourceNotFoundError(uri)
	}

	a, err := s.assets.Get(ctx)
	if err != nil {
		return nil, MapError(err)
	}

	for _, c := range a.Chunks {
		if c.ID != id {
			continue
		}
		data, err := json.MarshalIndent(chunkResource{ChunkID: c.ID, Text: c.Text, Metadata: metadataMap(c.Metadata)}, "", "  ")
		if err != nil {
			return nil, MapError(err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			}},
		}, nil
	}
	return nil, NewResourceNotFoundError(uri)
}
