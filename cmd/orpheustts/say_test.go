package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-orpheus-tts/internal/audio"
	"github.com/example/go-orpheus-tts/internal/engine"
	"github.com/example/go-orpheus-tts/internal/server"
	"github.com/example/go-orpheus-tts/internal/testutil"
)

func TestReadSayText(t *testing.T) {
	t.Run("uses flag text", func(t *testing.T) {
		got, err := readSayText("hello", strings.NewReader("ignored"))
		if err != nil {
			t.Fatalf("readSayText returned error: %v", err)
		}
		if got != "hello" {
			t.Fatalf("expected hello, got %q", got)
		}
	})

	t.Run("falls back to stdin", func(t *testing.T) {
		got, err := readSayText("", strings.NewReader(" from stdin \n"))
		if err != nil {
			t.Fatalf("readSayText returned error: %v", err)
		}
		if got != "from stdin" {
			t.Fatalf("expected trimmed stdin text, got %q", got)
		}
	})

	t.Run("fails when both empty", func(t *testing.T) {
		if _, err := readSayText("", strings.NewReader("   \n\t")); err == nil {
			t.Fatal("expected error for empty input")
		}
	})
}

func TestLocalAddr(t *testing.T) {
	if got := localAddr(":8080"); got != "127.0.0.1:8080" {
		t.Errorf("localAddr(:8080) = %q", got)
	}
	if got := localAddr("10.0.0.1:9000"); got != "10.0.0.1:9000" {
		t.Errorf("localAddr kept host = %q", got)
	}
}

func newSayServer(t *testing.T) string {
	t.Helper()
	voices, err := engine.NewVoices("tara", "leo")
	if err != nil {
		t.Fatalf("NewVoices: %v", err)
	}
	ts := httptest.NewServer(server.NewHandler(engine.NewTone(24000), voices))
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestRunSay_WritesWAVFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "say.wav")
	opts := sayOptions{server: newSayServer(t), out: out, voice: "leo", priority: "tool"}

	if err := runSay(context.Background(), opts, "Hello there.", 24000, nil); err != nil {
		t.Fatalf("runSay: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	testutil.AssertValidWAV(t, data, 24000)
}

func TestRunSay_RawToStdout(t *testing.T) {
	var stdout bytes.Buffer
	opts := sayOptions{server: newSayServer(t), out: "-", raw: true, priority: "chat"}

	if err := runSay(context.Background(), opts, "Hi.", 24000, &stdout); err != nil {
		t.Fatalf("runSay: %v", err)
	}
	if stdout.Len() == 0 || stdout.Len()%2 != 0 {
		t.Errorf("raw pcm = %d bytes", stdout.Len())
	}
	if bytes.HasPrefix(stdout.Bytes(), []byte("RIFF")) {
		t.Error("raw output carries a WAV header")
	}
}

func TestRunSay_WAVToStdoutStreamsHeader(t *testing.T) {
	var stdout bytes.Buffer
	opts := sayOptions{server: newSayServer(t), out: "-", priority: "tool"}

	if err := runSay(context.Background(), opts, "Hi there.", 24000, &stdout); err != nil {
		t.Fatalf("runSay: %v", err)
	}
	data := stdout.Bytes()
	if len(data) <= audio.WAVHeaderSize || !bytes.HasPrefix(data, []byte("RIFF")) {
		t.Fatalf("stdout = %d bytes; want streaming WAV", len(data))
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != 0xFFFFFFFF {
		t.Errorf("data chunk size = %#x; want streaming marker", got)
	}
}

func TestRunSay_BadPriority(t *testing.T) {
	opts := sayOptions{server: newSayServer(t), out: "-", priority: "urgent"}
	if err := runSay(context.Background(), opts, "Hi.", 24000, &bytes.Buffer{}); err == nil {
		t.Fatal("runSay accepted an unknown priority")
	}
}
