package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageExtractor returns the text of each page of a document, in order.
// Blank pages are kept so that page numbers stay aligned with the source.
type PageExtractor interface {
	Pages(ctx context.Context, path string) ([]string, error)
}

// DefaultPDFTool is the poppler text extractor.
const DefaultPDFTool = "pdftotext"

// PDFExtractor runs pdftotext, which separates pages with form feeds.
type PDFExtractor struct {
	// Binary defaults to DefaultPDFTool.
	Binary string
}

// Pages implements PageExtractor.
func (p PDFExtractor) Pages(ctx context.Context, path string) ([]string, error) {
	bin := p.Binary
	if bin == "" {
		bin = DefaultPDFTool
	}
	cmd := exec.CommandContext(ctx, bin, "-enc", "UTF-8", "-layout", path, "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s %s: %w", bin, filepath.Base(path), err)
		}
		return nil, fmt.Errorf("%s %s: %w: %s", bin, filepath.Base(path), err, msg)
	}
	return splitPages(stdout.String()), nil
}

// TextExtractor reads plain text; form feeds separate pages.
type TextExtractor struct{}

// Pages implements PageExtractor.
func (TextExtractor) Pages(_ context.Context, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return splitPages(string(data)), nil
}

// HTMLExtractor treats each element with class "page" as a page, or the
// whole body as one page when there are none.
type HTMLExtractor struct{}

// Pages implements PageExtractor.
func (HTMLExtractor) Pages(_ context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", filepath.Base(path), err)
	}
	doc.Find("script, style, noscript").Remove()

	var pages []string
	doc.Find(".page").Each(func(_ int, s *goquery.Selection) {
		pages = append(pages, s.Text())
	})
	if len(pages) == 0 {
		pages = []string{doc.Find("body").Text()}
	}
	return pages, nil
}

// splitPages splits on form feeds, dropping the empty tail that
// pdftotext leaves after the last page.
func splitPages(s string) []string {
	pages := strings.Split(s, "\f")
	for len(pages) > 0 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}

// DefaultExtractors maps lowercase file extensions to extractors.
func DefaultExtractors() map[string]PageExtractor {
	return map[string]PageExtractor{
		".pdf":  PDFExtractor{},
		".txt":  TextExtractor{},
		".html": HTMLExtractor{},
		".htm":  HTMLExtractor{},
	}
}
