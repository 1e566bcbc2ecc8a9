package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/example/go-orpheus-tts/internal/audio"
)

// CLI runs an external synthesis executable per request. The text is
// written to stdin and raw PCM16 (or a streaming WAV) is read from stdout
// as it is produced. Sampling parameters travel as environment variables.
type CLI struct {
	Path       string
	Args       []string
	Rate       int
	ChunkBytes int
	// WAVOutput skips the 44-byte header the executable writes first.
	WAVOutput bool
}

const defaultCLIChunkBytes = 4800

func (c *CLI) executable() string {
	if strings.TrimSpace(c.Path) == "" {
		return "orpheus-tts"
	}
	return c.Path
}

func (c *CLI) SampleRate() int {
	if c.Rate <= 0 {
		return audio.DefaultSampleRate
	}
	return c.Rate
}

// Ready reports whether the executable can be resolved.
func (c *CLI) Ready(context.Context) error {
	if _, err := exec.LookPath(c.executable()); err != nil {
		return fmt.Errorf("synthesis executable: %w", err)
	}
	return nil
}

func (c *CLI) Stream(ctx context.Context, req Request) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		args := append([]string(nil), c.Args...)
		if strings.TrimSpace(req.Voice) != "" {
			args = append(args, "--voice", req.Voice)
		}

		cmd := exec.CommandContext(ctx, c.executable(), args...)
		cmd.Stdin = strings.NewReader(req.Text)
		cmd.Env = append(os.Environ(), requestEnv(req)...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			yield(nil, fmt.Errorf("stdout pipe: %w", err))
			return
		}
		if err := cmd.Start(); err != nil {
			yield(nil, fmt.Errorf("start synthesis executable: %w", err))
			return
		}

		stopped, readErr := c.pump(stdout, yield)
		if stopped {
			cancel()
			_ = cmd.Wait()
			return
		}

		waitErr := cmd.Wait()
		switch {
		case readErr != nil:
			yield(nil, fmt.Errorf("read synthesis output: %w", readErr))
		case waitErr != nil:
			yield(nil, fmt.Errorf("synthesis executable: %w: %s", waitErr, strings.TrimSpace(stderr.String())))
		}
	}
}

// pump forwards stdout in pieces of up to ChunkBytes as it arrives.
// stopped is true when the consumer broke out of the sequence.
func (c *CLI) pump(r io.Reader, yield func([]byte, error) bool) (stopped bool, err error) {
	if c.WAVOutput {
		if _, err := io.CopyN(io.Discard, r, audio.WAVHeaderSize); err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}
	}

	size := c.ChunkBytes
	if size <= 0 {
		size = defaultCLIChunkBytes
	}

	return readChunks(r, size, func(b []byte) bool { return yield(b, nil) })
}

func requestEnv(req Request) []string {
	env := []string{
		"ORPHEUS_PRIORITY=" + strconv.Itoa(int(req.Priority)),
		"ORPHEUS_REQUEST_ID=" + req.RequestID,
	}
	if req.Params.Temperature > 0 {
		env = append(env, "ORPHEUS_TEMPERATURE="+strconv.FormatFloat(req.Params.Temperature, 'f', -1, 64))
	}
	if req.Params.TopP > 0 {
		env = append(env, "ORPHEUS_TOP_P="+strconv.FormatFloat(req.Params.TopP, 'f', -1, 64))
	}
	if req.Params.RepetitionPenalty > 0 {
		env = append(env, "ORPHEUS_REPETITION_PENALTY="+strconv.FormatFloat(req.Params.RepetitionPenalty, 'f', -1, 64))
	}
	return env
}
