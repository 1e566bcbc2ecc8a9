package text

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "passthrough clean text", input: "Hello world", want: "Hello world"},
		{name: "trims edges", input: "\t\n Hello \n\t", want: "Hello"},
		{name: "collapses inner runs", input: "Hello    big   world", want: "Hello big world"},
		{name: "line breaks become spaces", input: "line one\r\nline two\rline three\nend", want: "line one line two line three end"},
		{name: "empty", input: "", wantErr: ErrEmptyText},
		{name: "whitespace only", input: " \r\n\t ", wantErr: ErrEmptyText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Normalize(%q) error = %v; want %v", tt.input, err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Normalize(%q) unexpected error: %v", tt.input, err)
			}

			if got != tt.want {
				t.Errorf("Normalize(%q) = %q; want %q", tt.input, got, tt.want)
			}
		})
	}
}
