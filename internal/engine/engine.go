// Package engine defines the synthesis collaborators the streaming core
// calls into, and the backends that implement them.
package engine

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

// Priority is a scheduling hint forwarded to the inference engine. Higher
// values are served first: Tool > Chat > Warm.
type Priority int

const (
	PriorityWarm Priority = iota
	PriorityChat
	PriorityTool
)

func (p Priority) String() string {
	switch p {
	case PriorityTool:
		return "tool"
	case PriorityChat:
		return "chat"
	case PriorityWarm:
		return "warm"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority maps a case-insensitive tier name to a Priority. An empty
// string is PriorityChat.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "chat":
		return PriorityChat, nil
	case "tool":
		return PriorityTool, nil
	case "warm":
		return PriorityWarm, nil
	default:
		return PriorityChat, fmt.Errorf("unknown priority %q (want tool|chat|warm)", s)
	}
}

// Params are the sampling parameters passed to the engine.
type Params struct {
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
}

// Request is one unit of text to synthesize.
type Request struct {
	Text      string   `json:"text"`
	Voice     string   `json:"voice"`
	Params    Params   `json:"params"`
	Priority  Priority `json:"priority"`
	RequestID string   `json:"request_id,omitempty"`
}

// Synthesizer turns text into a lazy sequence of little-endian PCM16 audio
// chunks. The sequence ends after the last chunk or after yielding a
// non-nil error. Breaking out of the range loop stops generation.
type Synthesizer interface {
	Stream(ctx context.Context, req Request) iter.Seq2[[]byte, error]
}

// Prober is a cheap liveness check of the downstream engine.
type Prober interface {
	Ready(ctx context.Context) error
}

// Engine is what a backend provides.
type Engine interface {
	Synthesizer
	Prober
	SampleRate() int
}
