// Package session holds the per-connection pieces of a streaming session:
// mutable connection state, the lifecycle watchdog, cancellation signals
// and the inbound message receiver.
package session

import (
	"github.com/example/go-orpheus-tts/internal/engine"
	"github.com/example/go-orpheus-tts/internal/protocol"
)

// Settings are the negotiated synthesis settings of a connection.
type Settings struct {
	Voice          string
	Sampling       engine.Params
	TrimSilence    bool
	PrespeechPadMS int
}

// State is owned by exactly one connection handler and mutated only from
// its message loop.
type State struct {
	ID       string
	Priority engine.Priority
	Settings Settings
}

func NewState(id string, priority engine.Priority, defaults Settings) *State {
	return &State{
		ID:       id,
		Priority: priority,
		Settings: defaults,
	}
}

// ApplyMeta merges the fields a meta message sets into the settings.
func (s *State) ApplyMeta(msg protocol.Message) {
	if msg.Voice != "" {
		s.Settings.Voice = msg.Voice
	}
	p := msg.Params
	if p.Temperature != nil {
		s.Settings.Sampling.Temperature = *p.Temperature
	}
	if p.TopP != nil {
		s.Settings.Sampling.TopP = *p.TopP
	}
	if p.RepetitionPenalty != nil {
		s.Settings.Sampling.RepetitionPenalty = *p.RepetitionPenalty
	}
	if p.TrimSilence != nil {
		s.Settings.TrimSilence = *p.TrimSilence
	}
	if p.PrespeechPadMS != nil {
		s.Settings.PrespeechPadMS = *p.PrespeechPadMS
	}
}
