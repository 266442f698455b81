package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
)

func TestReadResource_ReturnsChunkJSON(t *testing.T) {
	srv := newTestServer(t, serverDeps{})

	res, err := srv.handleReadResource(context.Background(), "chunk://camry-p1-c1")

	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)

	var got chunkResource
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &got))
	assert.Equal(t, "camry-p1-c1", got.ChunkID)
	assert.Equal(t, "Toyota", got.Metadata["make"])
	assert.Equal(t, float64(2018), got.Metadata["year"])
}

func TestReadResource_NotFound(t *testing.T) {
	srv := newTestServer(t, serverDeps{})

	for _, uri := range []string{"chunk://missing-p1-c1", "chunk://", "file://camry.pdf"} {
		_, err := srv.handleReadResource(context.Background(), uri)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr, uri)
		assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
	}
}

func TestReadResource_IndexUnavailable(t *testing.T) {
	srv := newTestServer(t, serverDeps{assets: &mockAssets{err: awerrors.IndexUnavailable("missing", nil)}})

	_, err := srv.handleReadResource(context.Background(), "chunk://camry-p1-c1")

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeIndexUnavailable, mcpErr.Code)
}
