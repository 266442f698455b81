package chunk

import (
	"fmt"
	"iter"
	"strings"

	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
)

// ValidateWindow checks word-window parameters. An overlap equal to or
// larger than the window would never advance.
func ValidateWindow(maxWords, overlap int) error {
	if maxWords <= 0 {
		return awerrors.ConfigError(fmt.Sprintf("max words must be positive, got %d", maxWords), nil).
			WithDetail("max_words", fmt.Sprint(maxWords))
	}
	if overlap < 0 || overlap >= maxWords {
		return awerrors.ConfigError(
			fmt.Sprintf("overlap must be in [0, %d), got %d", maxWords, overlap), nil).
			WithDetail("max_words", fmt.Sprint(maxWords)).
			WithDetail("overlap", fmt.Sprint(overlap)).
			WithSuggestion("lower chunking.overlap or raise chunking.max_words")
	}
	return nil
}

// Split returns the overlapping word windows of text.
//
// Each window holds up to maxWords words rejoined with single spaces. The next
// window starts overlap words before the end of the previous one, so
// consecutive windows share exactly overlap words; the final window may be
// shorter. The sequence is evaluated lazily and may be ranged over repeatedly.
func Split(text string, maxWords, overlap int) (iter.Seq[string], error) {
	if err := ValidateWindow(maxWords, overlap); err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		words := strings.Fields(text)
		for start := 0; start < len(words); {
			end := min(start+maxWords, len(words))
			if !yield(strings.Join(words[start:end], " ")) {
				return
			}
			if end == len(words) {
				return
			}
			start = end - overlap
		}
	}, nil
}

// Document chunks the pages of one source document. Pages are numbered from
// 1 in slice order; blank pages keep their number but yield nothing. Every
// chunk carries a copy of base plus brochure_id and page.
func Document(documentID string, pages []string, base Metadata, maxWords, overlap int) (iter.Seq[Chunk], error) {
	if err := ValidateWindow(maxWords, overlap); err != nil {
		return nil, err
	}

	return func(yield func(Chunk) bool) {
		for i, raw := range pages {
			page := i + 1
			text := CleanText(raw)
			if text == "" {
				continue
			}

			// Window parameters were validated above.
			windows, _ := Split(text, maxWords, overlap)
			seq := 0
			for window := range windows {
				seq++
				md := base.Clone()
				md[KeyBrochureID] = StringValue(documentID)
				md[KeyPage] = IntValue(page)
				if !yield(Chunk{ID: ID(documentID, page, seq), Text: window, Metadata: md}) {
					return
				}
			}
		}
	}, nil
}
