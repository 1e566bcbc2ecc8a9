package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Units normalizes raw and splits it into the ordered pieces that are
// synthesized one at a time: one unit per sentence. With maxChars > 0 a
// sentence longer than maxChars is word-wrapped; a single word is never
// split.
func Units(raw string, maxChars int) ([]string, error) {
	s, err := Normalize(raw)
	if err != nil {
		return nil, err
	}

	sentences := splitSentences(s)
	if maxChars <= 0 {
		return sentences, nil
	}

	units := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		if utf8.RuneCountInString(sentence) <= maxChars {
			units = append(units, sentence)
			continue
		}
		units = append(units, wrapWords(sentence, maxChars)...)
	}
	return units, nil
}

// splitSentences splits text after sentence-ending punctuation that is
// followed by whitespace or the end of input, so "3.5" and "v1.2" stay
// whole. Closing quotes and brackets stay with their sentence.
func splitSentences(text string) []string {
	var sentences []string

	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && (isTerminator(runes[end]) || isCloser(runes[end])) {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			i = end - 1
			continue
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			sentences = append(sentences, s)
		}
		start = end
		i = end - 1
	}

	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '»':
		return true
	}
	return false
}

// wrapWords packs words greedily into pieces of at most maxChars runes. A
// word longer than maxChars becomes its own piece.
func wrapWords(s string, maxChars int) []string {
	var (
		out     []string
		current strings.Builder
		size    int
	)
	for _, w := range strings.Fields(s) {
		n := utf8.RuneCountInString(w)
		if size > 0 && size+1+n > maxChars {
			out = append(out, current.String())
			current.Reset()
			size = 0
		}
		if size > 0 {
			current.WriteByte(' ')
			size++
		}
		current.WriteString(w)
		size += n
	}
	if size > 0 {
		out = append(out, current.String())
	}
	return out
}
