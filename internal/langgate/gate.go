// Package langgate rejects text whose detected script or language is not
// on an allow list. Detection requests from all connections are grouped
// through a batch.Executor. The gate fails open: when detection errors or
// times out the text is let through.
package langgate

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/example/go-orpheus-tts/internal/batch"
)

// Gate checks text against an allow list. A nil Gate allows everything.
type Gate struct {
	allowed map[string]bool
	exec    *batch.Executor[string, string]
	timeout time.Duration
	log     *slog.Logger
}

// Config configures a Gate.
type Config struct {
	Allowed      []string
	MaxBatchSize int
	MaxDelay     time.Duration
	WaitTimeout  time.Duration
	Logger       *slog.Logger
	Observer     batch.Observer
}

// New returns nil when cfg.Allowed is empty.
func New(det Detector, cfg Config) *Gate {
	allowed := make(map[string]bool, len(cfg.Allowed))
	for _, a := range cfg.Allowed {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			allowed[a] = true
		}
	}
	if len(allowed) == 0 {
		return nil
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	opts := []batch.Option{
		batch.WithMaxBatchSize(cfg.MaxBatchSize),
		batch.WithMaxDelay(cfg.MaxDelay),
		batch.WithLogger(log),
	}
	if cfg.Observer != nil {
		opts = append(opts, batch.WithObserver(cfg.Observer))
	}

	return &Gate{
		allowed: allowed,
		exec:    batch.New(det.Detect, opts...),
		timeout: cfg.WaitTimeout,
		log:     log,
	}
}

// Check reports the detected label and whether text may be synthesized.
// Text without letters is always allowed.
func (g *Gate) Check(ctx context.Context, text string) (label string, ok bool) {
	if g == nil {
		return "", true
	}

	label, err := g.exec.Submit(ctx, text, g.timeout)
	if err != nil {
		g.log.Warn("language detection failed, allowing text", slog.String("error", err.Error()))
		return "", true
	}

	label = strings.ToLower(label)
	return label, label == LabelUnknown || g.allowed[label]
}

// Close stops the detection worker.
func (g *Gate) Close() {
	if g == nil {
		return
	}
	g.exec.Close()
}
