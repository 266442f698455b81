package autowriter

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/autowriter/configs"
)

// Taxonomy is the controlled keyword vocabulary.
type Taxonomy struct {
	tags     []string
	tagSet   map[string]struct{}
	synonyms map[string]string
}

type taxonomyFile struct {
	Tags     []string          `yaml:"tags"`
	Synonyms map[string]string `yaml:"synonyms"`
}

// ParseTaxonomy decodes a taxonomy YAML document. Every synonym must map
// to a declared tag.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var f taxonomyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	t := &Taxonomy{
		tagSet:   make(map[string]struct{}, len(f.Tags)),
		synonyms: make(map[string]string, len(f.Synonyms)),
	}
	for _, tag := range f.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := t.tagSet[tag]; dup {
			continue
		}
		t.tags = append(t.tags, tag)
		t.tagSet[tag] = struct{}{}
	}
	for term, tag := range f.Synonyms {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if _, ok := t.tagSet[tag]; !ok {
			return nil, fmt.Errorf("parse taxonomy: synonym %q maps to unknown tag %q", term, tag)
		}
		t.synonyms[strings.ToLower(strings.TrimSpace(term))] = tag
	}
	return t, nil
}

var (
	defaultTaxonomy     *Taxonomy
	defaultTaxonomyErr  error
	defaultTaxonomyOnce sync.Once
)

// DefaultTaxonomy returns the embedded taxonomy.
func DefaultTaxonomy() (*Taxonomy, error) {
	defaultTaxonomyOnce.Do(func() {
		defaultTaxonomy, defaultTaxonomyErr = ParseTaxonomy(configs.Taxonomy)
	})
	return defaultTaxonomy, defaultTaxonomyErr
}

// Tags returns the vocabulary in declaration order.
func (t *Taxonomy) Tags() []string {
	return slices.Clone(t.tags)
}

// Normalize maps tag or one of its synonyms to the canonical tag. Spaces
// and underscores are interchangeable. ok is false for unknown tags.
func (t *Taxonomy) Normalize(tag string) (string, bool) {
	lower := strings.ToLower(strings.Join(strings.Fields(tag), " "))
	if lower == "" {
		return "", false
	}
	if _, ok := t.tagSet[lower]; ok {
		return lower, true
	}
	underscored := strings.ReplaceAll(lower, " ", "_")
	if _, ok := t.tagSet[underscored]; ok {
		return underscored, true
	}
	if canon, ok := t.synonyms[lower]; ok {
		return canon, true
	}
	return "", false
}

// ExtractTags returns the tags mentioned in text, directly or through a
// synonym, ordered by first mention.
func (t *Taxonomy) ExtractTags(text string) []string {
	lower := strings.ToLower(text)
	first := make(map[string]int)
	note := func(tag string, pos int) {
		if pos < 0 {
			return
		}
		if prev, ok := first[tag]; !ok || pos < prev {
			first[tag] = pos
		}
	}

	for _, tag := range t.tags {
		note(tag, findTerm(lower, tag))
		if spaced := strings.ReplaceAll(tag, "_", " "); spaced != tag {
			note(tag, findTerm(lower, spaced))
		}
	}
	for term, tag := range t.synonyms {
		note(tag, findTerm(lower, term))
	}

	tags := make([]string, 0, len(first))
	for tag := range first {
		tags = append(tags, tag)
	}
	slices.SortFunc(tags, func(a, b string) int {
		return cmp.Or(cmp.Compare(first[a], first[b]), cmp.Compare(a, b))
	})
	return tags
}

// findTerm returns the byte offset of the first occurrence of term in text
// that is not glued to surrounding letters or digits, or -1.
func findTerm(text, term string) int {
	if term == "" {
		return -1
	}
	offset := 0
	for {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			return -1
		}
		start := offset + i
		end := start + len(term)
		if !wordRuneBefore(text, start) && !wordRuneAfter(text, end) {
			return start
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func wordRuneBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return isWordRune(r)
}

func wordRuneAfter(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return isWordRune(r)
}
