package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type Voice struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	License     string `json:"license,omitempty"`
}

type voiceManifest struct {
	Voices []Voice `json:"voices"`
}

// Voices is the catalogue of voices clients may select. An empty catalogue
// accepts any voice name and leaves validation to the engine.
type Voices struct {
	voices []Voice
	byID   map[string]Voice
}

// NewVoices builds a catalogue from bare voice IDs.
func NewVoices(ids ...string) (*Voices, error) {
	voices := make([]Voice, 0, len(ids))
	for _, id := range ids {
		voices = append(voices, Voice{ID: id})
	}
	return newVoices(voices)
}

// LoadVoiceManifest reads a JSON manifest of the form {"voices":[{"id":...}]}.
func LoadVoiceManifest(manifestPath string) (*Voices, error) {
	if manifestPath == "" {
		return nil, errors.New("manifest path is required")
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read voice manifest: %w", err)
	}

	var manifest voiceManifest

	err = json.Unmarshal(data, &manifest)
	if err != nil {
		return nil, fmt.Errorf("decode voice manifest: %w", err)
	}

	return newVoices(manifest.Voices)
}

func newVoices(list []Voice) (*Voices, error) {
	v := &Voices{
		voices: append([]Voice(nil), list...),
		byID:   make(map[string]Voice, len(list)),
	}

	for _, voice := range list {
		if voice.ID == "" {
			return nil, errors.New("voice catalogue contains empty id")
		}

		if _, exists := v.byID[voice.ID]; exists {
			return nil, fmt.Errorf("duplicate voice id %q", voice.ID)
		}

		v.byID[voice.ID] = voice
	}

	return v, nil
}

func (v *Voices) ListVoices() []Voice {
	if v == nil {
		return nil
	}
	return append([]Voice(nil), v.voices...)
}

// Has reports whether id may be selected.
func (v *Voices) Has(id string) bool {
	if v == nil || len(v.byID) == 0 {
		return true
	}
	_, ok := v.byID[id]
	return ok
}
