package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/example/go-orpheus-tts/internal/config"
	"github.com/example/go-orpheus-tts/internal/engine"
	"github.com/example/go-orpheus-tts/internal/gateway"
	"github.com/example/go-orpheus-tts/internal/langgate"
	"github.com/example/go-orpheus-tts/internal/session"
	"github.com/example/go-orpheus-tts/internal/telemetry"
)

const serviceName = "orpheustts"

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// ---------------------------------------------------------------------------
// Server: wires the handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server builds the engine, the language gate and telemetry from a Config
// and serves the websocket handler until its context is cancelled.
type Server struct {
	cfg             config.Config
	shutdownTimeout time.Duration
	log             *slog.Logger
}

func New(cfg config.Config) *Server {
	timeout := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		timeout = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}
	return &Server{
		cfg:             cfg,
		shutdownTimeout: timeout,
		log:             slog.Default(),
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger sets the logger passed down to every component.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	if l != nil {
		s.log = l
	}
	return s
}

// Start listens on the configured address and blocks until ctx is
// cancelled or the listener fails. Cancelling ctx closes every open
// session with a going-away code before the HTTP server drains.
func (s *Server) Start(ctx context.Context) error {
	eng, err := engine.New(s.cfg.Engine)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	voices, err := engine.VoicesFromConfig(s.cfg.TTS)
	if err != nil {
		return fmt.Errorf("voices: %w", err)
	}
	if !voices.Has(s.cfg.TTS.DefaultVoice) {
		return fmt.Errorf("default voice %q is not in the voice list", s.cfg.TTS.DefaultVoice)
	}

	tel, err := telemetry.Setup(s.cfg.Telemetry.MetricsEnabled, serviceName, buildVersion(), s.log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	gate := langgate.New(langgate.ScriptDetector{}, langgate.Config{
		Allowed:      s.cfg.LangGate.Allowed,
		MaxBatchSize: s.cfg.Batch.MaxBatchSize,
		MaxDelay:     s.cfg.Batch.MaxDelay(),
		WaitTimeout:  s.cfg.Batch.WaitTimeout(),
		Logger:       s.log,
		Observer: func(size int, _ time.Duration, err error) {
			tel.Metrics.BatchExecuted(context.Background(), size, err)
		},
	})
	defer gate.Close()

	sessionCtx, stopSessions := context.WithCancel(context.Background())
	defer stopSessions()

	h := NewHandler(eng, voices, s.handlerOptions(sessionCtx, gate, tel)...)

	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	httpServer := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.Info("server listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("backend", s.cfg.Engine.Backend),
		slog.Int("max_connections", s.cfg.Server.MaxConnections),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down", slog.Duration("timeout", s.shutdownTimeout))
		// Websocket connections are hijacked, so Shutdown does not see them.
		stopSessions()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	}
}

func (s *Server) handlerOptions(ctx context.Context, gate *langgate.Gate, tel *telemetry.Telemetry) []Option {
	sc := s.cfg.Server
	tc := s.cfg.TTS

	opts := []Option{
		WithMaxConnections(sc.MaxConnections),
		WithIdleTimeout(sc.IdleTimeoutDuration()),
		WithTTL(sc.TTLDuration()),
		WithWatchdogTick(sc.WatchdogTick()),
		WithAcquireTimeout(sc.AcquireTimeout()),
		WithReadyTimeout(s.cfg.Engine.ReadyTimeout()),
		WithQueueSize(sc.QueueMaxSize),
		WithMaxTextBytes(sc.MaxTextBytes),
		WithMaxMessageBytes(int64(sc.MaxMessageBytes)),
		WithWriteTimeout(sc.WriteTimeout()),
		WithMaxUnitChars(tc.MaxUnitChars),
		WithLookahead(tc.Lookahead),
		WithDefaults(session.Settings{
			Voice: tc.DefaultVoice,
			Sampling: engine.Params{
				Temperature:       tc.Temperature,
				TopP:              tc.TopP,
				RepetitionPenalty: tc.RepetitionPenalty,
			},
		}),
		WithAuthorizer(gateway.NewTokenAuthorizer(sc.AuthTokens)),
		WithMetrics(tel.Metrics),
		WithBaseContext(ctx),
		WithLogger(s.log),
	}
	if gate != nil {
		opts = append(opts, WithLangGate(gate))
	}
	if tel.Handler != nil {
		opts = append(opts, WithMetricsHandler(tel.Handler))
	}
	return opts
}

// ProbeHTTP checks the /health endpoint of a running server.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
