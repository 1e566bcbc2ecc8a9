// Package protocol defines the JSON control messages exchanged over the
// streaming websocket, the inbound parser, and the stable close codes.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType tags an inbound Message.
type MessageType string

const (
	TypeText   MessageType = "text"
	TypeMeta   MessageType = "meta"
	TypeEnd    MessageType = "end"
	TypeCancel MessageType = "cancel"
	TypePing   MessageType = "ping"
)

// Error codes carried on a synthetic end message and echoed in error events.
const (
	CodeParseError          = "parse_error"
	CodeValidationError     = "validation_error"
	CodeUnsupportedLanguage = "unsupported_language"
	CodeInternalError       = "internal_error"
)

var (
	// ErrParse marks a frame that is not a JSON object.
	ErrParse = errors.New("malformed message")
	// ErrValidation marks a well-formed frame with a bad field.
	ErrValidation = errors.New("invalid message")
)

// Params are the negotiable sampling and post-processing fields of a meta
// message. Nil means "not set by the client".
type Params struct {
	Temperature       *float64 `json:"temperature,omitempty"`
	TopP              *float64 `json:"top_p,omitempty"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`
	TrimSilence       *bool    `json:"trim_silence,omitempty"`
	PrespeechPadMS    *int     `json:"prespeech_pad_ms,omitempty"`
}

// Message is one parsed inbound frame. Code and Detail are only set on
// synthetic end messages produced by the receiver after a failure.
type Message struct {
	Type      MessageType
	Text      string
	RequestID string
	Voice     string
	Params    Params
	Code      string
	Detail    string
}

// End returns a bare end message.
func End() Message {
	return Message{Type: TypeEnd}
}

// EndWithError returns an end message tagged with an error code.
func EndWithError(code, detail string) Message {
	return Message{Type: TypeEnd, Code: code, Detail: detail}
}

type wireMessage struct {
	Type      *string `json:"type"`
	Text      string  `json:"text"`
	RequestID string  `json:"request_id"`
	Voice     string  `json:"voice"`
	Params
}

// Parameter bounds enforced on meta messages.
const (
	MinTemperature       = 0.0
	MaxTemperature       = 2.0
	MinTopP              = 0.0
	MaxTopP              = 1.0
	MinRepetitionPenalty = 1.0
	MaxRepetitionPenalty = 2.0
	MaxPrespeechPadMS    = 2000
)

// Parser turns frames into Messages. The zero value accepts any voice and
// any text length.
type Parser struct {
	// KnownVoice reports whether a meta voice is acceptable. Nil accepts all.
	KnownVoice func(string) bool
	// MaxTextBytes limits text message payloads. Zero disables the check.
	MaxTextBytes int
}

// Parse decodes one text frame. ok is false when the frame carries nothing
// actionable (blank, unknown type, empty text) and should be skipped.
func (p Parser) Parse(data []byte) (msg Message, ok bool, err error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Message{}, false, nil
	}

	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Message{}, false, fmt.Errorf("%w: field %q: %v", ErrValidation, typeErr.Field, err)
		}
		return Message{}, false, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if w.Type == nil {
		return Message{}, false, fmt.Errorf("%w: missing type", ErrValidation)
	}

	msg = Message{
		Type:      MessageType(strings.ToLower(strings.TrimSpace(*w.Type))),
		RequestID: w.RequestID,
	}

	switch msg.Type {
	case TypeText:
		if strings.TrimSpace(w.Text) == "" {
			return Message{}, false, nil
		}
		if p.MaxTextBytes > 0 && len(w.Text) > p.MaxTextBytes {
			return Message{}, false, fmt.Errorf("%w: text exceeds maximum size of %d bytes", ErrValidation, p.MaxTextBytes)
		}
		msg.Text = w.Text
	case TypeMeta:
		if err := p.validateMeta(w); err != nil {
			return Message{}, false, err
		}
		msg.Voice = strings.TrimSpace(w.Voice)
		msg.Params = w.Params
	case TypeEnd, TypeCancel, TypePing:
	default:
		return Message{}, false, nil
	}

	return msg, true, nil
}

func (p Parser) validateMeta(w wireMessage) error {
	if v := strings.TrimSpace(w.Voice); v != "" && p.KnownVoice != nil && !p.KnownVoice(v) {
		return fmt.Errorf("%w: unknown voice %q", ErrValidation, v)
	}
	if t := w.Temperature; t != nil && (*t <= MinTemperature || *t > MaxTemperature) {
		return fmt.Errorf("%w: temperature %v out of range (%v, %v]", ErrValidation, *t, MinTemperature, MaxTemperature)
	}
	if t := w.TopP; t != nil && (*t <= MinTopP || *t > MaxTopP) {
		return fmt.Errorf("%w: top_p %v out of range (%v, %v]", ErrValidation, *t, MinTopP, MaxTopP)
	}
	if r := w.RepetitionPenalty; r != nil && (*r < MinRepetitionPenalty || *r > MaxRepetitionPenalty) {
		return fmt.Errorf("%w: repetition_penalty %v out of range [%v, %v]", ErrValidation, *r, MinRepetitionPenalty, MaxRepetitionPenalty)
	}
	if pad := w.PrespeechPadMS; pad != nil && (*pad < 0 || *pad > MaxPrespeechPadMS) {
		return fmt.Errorf("%w: prespeech_pad_ms %d out of range [0, %d]", ErrValidation, *pad, MaxPrespeechPadMS)
	}
	return nil
}
