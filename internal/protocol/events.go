package protocol

import "encoding/json"

// Outbound control event types.
const (
	EventSentence    = "sentence"
	EventSentenceEnd = "sentence_end"
	EventAudioEnd    = "audio_end"
	EventError       = "error"
	EventPong        = "pong"
)

// SentenceEvent announces the first audio of a unit.
type SentenceEvent struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Index     int    `json:"index"`
	RequestID string `json:"request_id,omitempty"`
}

// SentenceEndEvent marks the end of a unit's audio.
type SentenceEndEvent struct {
	Type      string `json:"type"`
	Index     int    `json:"index"`
	RequestID string `json:"request_id,omitempty"`
}

// AudioEndEvent marks the end of all audio for a request.
type AudioEndEvent struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// ErrorEvent reports a rejected message or a failed request.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// PongEvent answers a ping.
type PongEvent struct {
	Type string `json:"type"`
}

func Sentence(text string, index int, requestID string) []byte {
	return mustJSON(SentenceEvent{Type: EventSentence, Text: text, Index: index, RequestID: requestID})
}

func SentenceEnd(index int, requestID string) []byte {
	return mustJSON(SentenceEndEvent{Type: EventSentenceEnd, Index: index, RequestID: requestID})
}

func AudioEnd(requestID string, cancelled bool) []byte {
	return mustJSON(AudioEndEvent{Type: EventAudioEnd, RequestID: requestID, Cancelled: cancelled})
}

func Error(message, code string) []byte {
	return mustJSON(ErrorEvent{Type: EventError, Message: message, Code: code})
}

func Pong() []byte {
	return mustJSON(PongEvent{Type: EventPong})
}

// mustJSON marshals event structs made only of strings, ints and bools,
// which cannot fail.
func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// PeekType returns the "type" field of an outbound text frame, or "".
func PeekType(data []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return ""
	}
	return head.Type
}

// ClientMessage is the wire form of an inbound message, as a client
// writes it.
type ClientMessage struct {
	Type      MessageType `json:"type"`
	Text      string      `json:"text,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Voice     string      `json:"voice,omitempty"`
	Params
}
