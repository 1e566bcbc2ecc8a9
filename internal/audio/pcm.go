// Package audio holds the PCM helpers used on the streaming path: sample
// conversion, leading-silence shaping, and WAV framing for clients.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Output format of every engine backend.
const (
	DefaultSampleRate = 24000
	Channels          = 1
	BitDepth          = 16
	bytesPerSample    = BitDepth / 8
)

// PCM16 encodes float32 samples as little-endian 16-bit signed integers.
// Samples are clamped to [-1, 1].
func PCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		clamped := math.Max(-1.0, math.Min(1.0, float64(s)))
		v := int16(clamped * 32767)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// Float32 decodes little-endian 16-bit PCM into float32 samples. A trailing
// odd byte is ignored.
func Float32(pcm []byte) []float32 {
	n := len(pcm) / bytesPerSample
	out := make([]float32, n)
	for i := range n {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out
}

// Silence returns d worth of zero samples.
func Silence(d time.Duration, sampleRate int) []byte {
	if d <= 0 || sampleRate <= 0 {
		return nil
	}
	n := int(d * time.Duration(sampleRate) / time.Second)
	return make([]byte, n*bytesPerSample)
}

// Duration is the playback length of n bytes of mono PCM16.
func Duration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := n / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
