package langgate

import (
	"context"
	"slices"
	"unicode"
)

// Detector labels a batch of texts, one label per input, in input order.
type Detector interface {
	Detect(ctx context.Context, texts []string) ([]string, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, texts []string) ([]string, error)

func (f DetectorFunc) Detect(ctx context.Context, texts []string) ([]string, error) {
	return f(ctx, texts)
}

// LabelUnknown is returned for text without letters.
const LabelUnknown = "unknown"

var scripts = []struct {
	label string
	table *unicode.RangeTable
}{
	{"latin", unicode.Latin},
	{"cyrillic", unicode.Cyrillic},
	{"greek", unicode.Greek},
	{"arabic", unicode.Arabic},
	{"hebrew", unicode.Hebrew},
	{"devanagari", unicode.Devanagari},
	{"thai", unicode.Thai},
	{"hangul", unicode.Hangul},
	{"kana", unicode.Hiragana},
	{"kana", unicode.Katakana},
	{"han", unicode.Han},
}

// ScriptLabels lists the labels ScriptDetector can return besides
// LabelUnknown.
func ScriptLabels() []string {
	var out []string
	for _, sc := range scripts {
		if !slices.Contains(out, sc.label) {
			out = append(out, sc.label)
		}
	}
	return out
}

// ScriptDetector labels each text with the Unicode script most of its
// letters belong to. It is cheap and dependency-free, and stands in for a
// model-backed language identifier.
type ScriptDetector struct{}

func (ScriptDetector) Detect(ctx context.Context, texts []string) ([]string, error) {
	out := make([]string, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = dominantScript(t)
	}
	return out, nil
}

func dominantScript(s string) string {
	counts := make(map[string]int)
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		for _, sc := range scripts {
			if unicode.Is(sc.table, r) {
				counts[sc.label]++
				break
			}
		}
	}

	best, bestN := LabelUnknown, 0
	for _, sc := range scripts {
		if n := counts[sc.label]; n > bestN {
			best, bestN = sc.label, n
		}
	}
	return best
}
