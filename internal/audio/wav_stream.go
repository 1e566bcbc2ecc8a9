package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WAVHeaderSize is the size of the canonical PCM WAV header.
const WAVHeaderSize = 44

// WriteWAVHeaderStreaming writes a 44-byte WAV header suitable for streaming
// where the total data length is not known in advance.  Both the RIFF chunk
// size and the data sub-chunk size are set to 0xFFFFFFFF, which is the
// conventional marker for an unknown/streaming length.
//
// Format: mono, 16-bit PCM at sampleRate.
func WriteWAVHeaderStreaming(w io.Writer, sampleRate int) (int, error) {
	if sampleRate < 1 {
		return 0, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	const (
		channels      = Channels
		bitsPerSample = BitDepth
		blockAlign    = channels * bitsPerSample / 8
	)
	byteRate := sampleRate * blockAlign

	var hdr [WAVHeaderSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 0xFFFFFFFF)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], channels)
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], bitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], 0xFFFFFFFF)

	return w.Write(hdr[:])
}
