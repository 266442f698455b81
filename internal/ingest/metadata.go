package ingest

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/Aman-CERP/autowriter/internal/autowriter"
	"github.com/Aman-CERP/autowriter/internal/chunk"
)

var yearSegment = regexp.MustCompile(`^(19|20)\d{2}$`)

// DocumentID is the file name without its extension.
func DocumentID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PathMetadata infers base metadata from the directories of rel, a path
// relative to the source root. A segment that is exactly a year sets year;
// segments naming a catalog make or model set make and model. Later
// segments win. Keys that are not found stay null.
func PathMetadata(rel string, catalog *autowriter.Catalog) chunk.Metadata {
	md := chunk.BaseMetadata()
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." {
		return md
	}

	segments := strings.Split(dir, "/")
	makeName := ""
	for _, seg := range segments {
		if yearSegment.MatchString(seg) {
			y, _ := strconv.Atoi(seg)
			md[chunk.KeyYear] = chunk.IntValue(y)
			continue
		}
		if catalog == nil {
			continue
		}
		if m, ok := catalog.MatchMake(seg); ok {
			makeName = m
			md[chunk.KeyMake] = chunk.StringValue(m)
		}
	}
	if catalog == nil {
		return md
	}
	for _, seg := range segments {
		if model, ok := catalog.MatchModel(makeName, seg); ok {
			md[chunk.KeyModel] = chunk.StringValue(model)
			if makeName == "" {
				if m, ok := catalog.MakeOf(model); ok {
					md[chunk.KeyMake] = chunk.StringValue(m)
				}
			}
		}
	}
	return md
}
