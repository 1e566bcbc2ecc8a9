package audio

import (
	"encoding/binary"
	"time"
)

// DefaultSilenceThreshold is the absolute PCM16 amplitude at or below which
// a sample counts as silence (about -50 dBFS).
const DefaultSilenceThreshold = 100

// LeadingShaper rewrites the start of one unit's PCM16 stream: it can drop
// leading silence and prepend a fixed pad of zeros before the first
// audible sample. After that, chunks pass through untouched.
//
// A LeadingShaper is used by a single producer and is not safe for
// concurrent use.
type LeadingShaper struct {
	trim      bool
	threshold int16
	pad       []byte
	started   bool
	carry     []byte // odd trailing byte held back while trimming
}

// NewLeadingShaper returns a shaper, or nil when neither trimming nor
// padding is requested.
func NewLeadingShaper(trim bool, pad time.Duration, sampleRate int) *LeadingShaper {
	padBytes := Silence(pad, sampleRate)
	if !trim && len(padBytes) == 0 {
		return nil
	}
	return &LeadingShaper{
		trim:      trim,
		threshold: DefaultSilenceThreshold,
		pad:       padBytes,
	}
}

// Apply returns the bytes to forward for chunk. The result may be empty
// while leading silence is being dropped. A nil shaper passes chunks
// through.
func (s *LeadingShaper) Apply(chunk []byte) []byte {
	if s == nil || s.started {
		return chunk
	}

	if !s.trim {
		s.started = true
		return join(s.pad, chunk)
	}

	data := join(s.carry, chunk)
	s.carry = nil

	n := len(data) / bytesPerSample
	for i := range n {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		if v > s.threshold || v < -s.threshold {
			s.started = true
			return join(s.pad, data[i*2:])
		}
	}

	if len(data)%bytesPerSample == 1 {
		s.carry = []byte{data[len(data)-1]}
	}
	return data[:0]
}

// Started reports whether audible audio has been forwarded.
func (s *LeadingShaper) Started() bool {
	return s == nil || s.started
}

func join(a, b []byte) []byte {
	if len(a) == 0 {
		return b
	}
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
