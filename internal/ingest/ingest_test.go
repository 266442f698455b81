package ingest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/autowriter/internal/autowriter"
	"github.com/Aman-CERP/autowriter/internal/chunk"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/store"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func catalog(t *testing.T) *autowriter.Catalog {
	t.Helper()
	c, err := autowriter.DefaultCatalog()
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	root := t.TempDir()

	_, err := New(Config{})
	assert.ErrorIs(t, err, awerrors.ErrConfiguration)

	_, err = New(Config{Source: filepath.Join(root, "missing")})
	assert.Equal(t, awerrors.ErrCodeFileNotFound, awerrors.GetCode(err))

	_, err = New(Config{Source: root, MaxWords: 10, Overlap: 10})
	assert.ErrorIs(t, err, awerrors.ErrConfiguration)

	_, err = New(Config{Source: root, Include: []string{"[unclosed"}})
	assert.ErrorIs(t, err, awerrors.ErrConfiguration)
}

func TestDiscover_SortedAndFiltered(t *testing.T) {
	// Given a mix of brochures, drafts and unsupported files
	root := t.TempDir()
	writeFile(t, root, "toyota/camry/2019/camry.txt", "a")
	writeFile(t, root, "honda/accord.HTML", "<p>b</p>")
	writeFile(t, root, "honda/notes.md", "ignored")
	writeFile(t, root, "drafts/old.txt", "ignored")
	writeFile(t, root, "a.txt", "c")

	in, err := New(Config{Source: root, Exclude: []string{"drafts/**"}})
	require.NoError(t, err)

	// When discovering
	files, err := in.Discover(context.Background())

	// Then only included, non-excluded files are listed in sorted order
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "honda/accord.HTML", "toyota/camry/2019/camry.txt"}, files)
}

func TestDiscover_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "x")
	in, err := New(Config{Source: root})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = in.Discover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPathMetadata(t *testing.T) {
	c := catalog(t)

	tests := []struct {
		rel   string
		make  any
		model any
		year  any
	}{
		{"toyota/camry/2019/brochure.pdf", "Toyota", "Camry", float64(2019)},
		{"2020/Land-Cruiser/lc.pdf", "Toyota", "Land Cruiser", float64(2020)},
		{"brochures/misc.pdf", nil, nil, nil},
		{"flat.pdf", nil, nil, nil},
		{"toyota/2019x/brochure.pdf", "Toyota", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			md := PathMetadata(tt.rel, c)
			assert.Equal(t, tt.make, md.Get(chunk.KeyMake).Any())
			assert.Equal(t, tt.model, md.Get(chunk.KeyModel).Any())
			assert.Equal(t, tt.year, md.Get(chunk.KeyYear).Any())
			assert.Contains(t, md, chunk.KeyTrim)
			assert.Contains(t, md, chunk.KeyRegion)
		})
	}
}

func TestPathMetadata_NoCatalog(t *testing.T) {
	md := PathMetadata("toyota/2018/x.pdf", nil)
	assert.True(t, md.Get(chunk.KeyMake).IsNull())
	assert.Equal(t, chunk.IntValue(2018), md.Get(chunk.KeyYear))
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "camry-2019", DocumentID("toyota/camry-2019.pdf"))
	assert.Equal(t, "notes", DocumentID("notes"))
}

func TestRun_WritesChunkRecords(t *testing.T) {
	// Given a two-page text brochure and an HTML brochure
	root := t.TempDir()
	writeFile(t, root, "toyota/2019/camry.txt", "Camry hybrid engine\f\fSafety sense suite\f")
	writeFile(t, root, "honda/accord.html",
		`<html><body><script>var x;</script><div class="page">Accord page one</div><div class="page">Accord page two</div></body></html>`)

	in, err := New(Config{Source: root, Catalog: catalog(t)})
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "data", CorpusFile)

	// When running
	res, err := in.Run(context.Background(), out)

	// Then records are written in path order with inferred metadata
	require.NoError(t, err)
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 4, res.Chunks)

	chunks, err := store.LoadChunks(out)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"accord-p1-c1", "accord-p2-c1", "camry-p1-c1", "camry-p3-c1"}, ids)

	assert.Equal(t, "Accord page one", chunks[0].Text)
	assert.Equal(t, chunk.StringValue("Honda"), chunks[0].Metadata.Get(chunk.KeyMake))
	assert.Equal(t, chunk.IntValue(2019), chunks[2].Metadata.Get(chunk.KeyYear))
	assert.Equal(t, chunk.IntValue(3), chunks[3].Metadata.Get(chunk.KeyPage))
	assert.Equal(t, chunk.StringValue("camry"), chunks[3].Metadata.Get(chunk.KeyBrochureID))
}

func TestRun_SkipsFailingDocuments(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "broken.pdf", "%PDF")
	writeFile(t, root, "ok.txt", "fine words")

	in, err := New(Config{
		Source: root,
		Extractors: map[string]PageExtractor{
			".pdf": PDFExtractor{Binary: filepath.Join(root, "no-such-tool")},
			".txt": TextExtractor{},
		},
	})
	require.NoError(t, err)

	res, err := in.Run(context.Background(), filepath.Join(t.TempDir(), CorpusFile))

	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Chunks)
}

func TestRun_EmptyCorpus(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), CorpusFile)

	// No documents at all
	in, err := New(Config{Source: root})
	require.NoError(t, err)
	_, err = in.Run(context.Background(), out)
	assert.ErrorIs(t, err, awerrors.ErrEmptyCorpus)

	// Documents without text
	writeFile(t, root, "blank.txt", "  \f \n")
	_, err = in.Run(context.Background(), out)
	assert.ErrorIs(t, err, awerrors.ErrEmptyCorpus)
	assert.NoFileExists(t, out)
}

func TestPDFExtractor_SplitsFormFeeds(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "pdftotext")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nprintf 'first page\\fsecond page\\f'\n"), 0o755))

	pages, err := PDFExtractor{Binary: script}.Pages(context.Background(), filepath.Join(dir, "x.pdf"))

	require.NoError(t, err)
	assert.Equal(t, []string{"first page", "second page"}, pages)
}

func TestPDFExtractor_ReportsStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "pdftotext")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 'Syntax Error' >&2\nexit 1\n"), 0o755))

	_, err := PDFExtractor{Binary: script}.Pages(context.Background(), filepath.Join(dir, "x.pdf"))

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Syntax Error"))
}

func TestHTMLExtractor_BodyFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.html", "<html><head><style>p{}</style></head><body><h1>Civic</h1>\n<p>Sport trim</p></body></html>")

	pages, err := HTMLExtractor{}.Pages(context.Background(), filepath.Join(dir, "b.html"))

	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Civic Sport trim", chunk.CleanText(pages[0]))
}
