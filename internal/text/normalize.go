// Package text turns client text into synthesis units: whitespace
// normalization followed by sentence segmentation.
package text

import (
	"errors"
	"strings"
)

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text is empty")

// Normalize collapses every run of whitespace (including line breaks) into
// a single space and trims the ends. Speech engines read a newline as a
// hard stop, so line-wrapped client text would otherwise gain pauses.
func Normalize(s string) (string, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", ErrEmptyText
	}
	return s, nil
}
