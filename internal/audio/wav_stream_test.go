package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestWriteWAVHeaderStreaming_Markers(t *testing.T) {
	var buf bytes.Buffer

	n, err := WriteWAVHeaderStreaming(&buf, DefaultSampleRate)
	if err != nil {
		t.Fatalf("WriteWAVHeaderStreaming error: %v", err)
	}
	if n != WAVHeaderSize {
		t.Fatalf("wrote %d bytes; want %d", n, WAVHeaderSize)
	}

	hdr := buf.Bytes()
	if string(hdr[0:4]) != "RIFF" {
		t.Errorf("RIFF marker = %q; want RIFF", hdr[0:4])
	}
	if string(hdr[8:12]) != "WAVE" {
		t.Errorf("WAVE marker = %q; want WAVE", hdr[8:12])
	}
	if string(hdr[36:40]) != "data" {
		t.Errorf("data marker = %q; want data", hdr[36:40])
	}
	if size := binary.LittleEndian.Uint32(hdr[40:44]); size != 0xFFFFFFFF {
		t.Errorf("data size = 0x%08X; want 0xFFFFFFFF", size)
	}
}

func TestWriteWAVHeaderStreaming_SampleRate(t *testing.T) {
	var buf bytes.Buffer

	if _, err := WriteWAVHeaderStreaming(&buf, 16000); err != nil {
		t.Fatal(err)
	}

	hdr := buf.Bytes()
	if rate := binary.LittleEndian.Uint32(hdr[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d; want 16000", rate)
	}
	if byteRate := binary.LittleEndian.Uint32(hdr[28:32]); byteRate != 32000 {
		t.Errorf("byte rate = %d; want 32000", byteRate)
	}
}

func TestWriteWAVHeaderStreaming_InvalidRate(t *testing.T) {
	if _, err := WriteWAVHeaderStreaming(&bytes.Buffer{}, 0); err == nil {
		t.Error("want error for zero sample rate")
	}
}

func TestPCM16_Encoding(t *testing.T) {
	data := PCM16([]float32{0.0, 1.0, -1.0, 0.5, -0.5})
	if len(data) != 10 {
		t.Fatalf("len = %d; want 10", len(data))
	}

	for i, want := range []int16{0, 32767, -32767, 16383, -16383} {
		got := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		if abs16(got-want) > 1 {
			t.Errorf("sample[%d] = %d; want ~%d", i, got, want)
		}
	}
}

func TestPCM16_Clamping(t *testing.T) {
	data := PCM16([]float32{2.0, -3.0})

	if got := int16(binary.LittleEndian.Uint16(data[0:2])); got != 32767 {
		t.Errorf("clamped +2.0 = %d; want 32767", got)
	}
	if got := int16(binary.LittleEndian.Uint16(data[2:4])); got != -32767 {
		t.Errorf("clamped -3.0 = %d; want -32767", got)
	}
}

func TestFloat32_IgnoresOddByte(t *testing.T) {
	pcm := append(PCM16([]float32{0.5}), 0x7f)
	got := Float32(pcm)
	if len(got) != 1 {
		t.Fatalf("len = %d; want 1", len(got))
	}
	if math.Abs(float64(got[0])-0.5) > 0.001 {
		t.Errorf("sample = %v; want ~0.5", got[0])
	}
}

func TestSilenceAndDuration(t *testing.T) {
	pad := Silence(100*time.Millisecond, 24000)
	if len(pad) != 4800 {
		t.Errorf("len(Silence(100ms)) = %d; want 4800", len(pad))
	}
	if d := Duration(len(pad), 24000); d != 100*time.Millisecond {
		t.Errorf("Duration = %v; want 100ms", d)
	}
	if Silence(0, 24000) != nil {
		t.Error("Silence(0) should be nil")
	}
}

func TestEncodeWAV_Header(t *testing.T) {
	pcm := PCM16([]float32{0, 0.25, -0.25, 0})

	wav, err := EncodeWAV(pcm, 24000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if len(wav) < WAVHeaderSize+len(pcm) {
		t.Fatalf("len = %d; want at least %d", len(wav), WAVHeaderSize+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Errorf("missing RIFF/WAVE markers: %q %q", wav[0:4], wav[8:12])
	}
}

func TestEncodeWAV_InvalidRate(t *testing.T) {
	if _, err := EncodeWAV(nil, 0); err == nil {
		t.Error("want error for zero sample rate")
	}
}

func abs16(v int16) int16 {
	if v < 0 {
		return -v
	}

	return v
}
