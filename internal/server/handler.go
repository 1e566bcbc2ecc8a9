package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/go-orpheus-tts/internal/engine"
	"github.com/example/go-orpheus-tts/internal/gateway"
	"github.com/example/go-orpheus-tts/internal/langgate"
	"github.com/example/go-orpheus-tts/internal/session"
	"github.com/example/go-orpheus-tts/internal/telemetry"
)

// VoiceLister returns the list of selectable voices.
type VoiceLister interface {
	ListVoices() []engine.Voice
	Has(id string) bool
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxConnections  int
	idleTimeout     time.Duration
	ttl             time.Duration
	watchdogTick    time.Duration
	acquireTimeout  time.Duration
	readyTimeout    time.Duration
	queueSize       int
	maxTextBytes    int
	maxMessageBytes int64
	writeTimeout    time.Duration
	maxUnitChars    int
	lookahead       int
	defaults        session.Settings
	authorizer      gateway.Authorizer
	gate            *langgate.Gate
	metrics         *telemetry.Metrics
	metricsHandler  http.Handler
	baseCtx         context.Context
	logger          *slog.Logger
}

func defaultOptions() options {
	return options{
		maxConnections:  16,
		idleTimeout:     60 * time.Second,
		ttl:             15 * time.Minute,
		watchdogTick:    time.Second,
		acquireTimeout:  500 * time.Millisecond,
		readyTimeout:    500 * time.Millisecond,
		queueSize:       64,
		maxTextBytes:    4096,
		maxMessageBytes: 64 << 10,
		writeTimeout:    5 * time.Second,
		maxUnitChars:    200,
		lookahead:       1,
		defaults: session.Settings{
			Voice:    "tara",
			Sampling: engine.Params{Temperature: 0.6, TopP: 0.8, RepetitionPenalty: 1.1},
		},
		authorizer: gateway.AllowAll,
		baseCtx:    context.Background(),
		logger:     slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxConnections sets the size of the admission pool.
func WithMaxConnections(n int) Option {
	return func(o *options) { o.maxConnections = n }
}

// WithIdleTimeout closes connections without inbound activity for d. Zero
// disables the limit.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idleTimeout = d }
}

// WithTTL closes connections older than d. Zero disables the limit.
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithWatchdogTick sets how often the lifecycle watchdog wakes.
func WithWatchdogTick(d time.Duration) Option {
	return func(o *options) { o.watchdogTick = d }
}

// WithAcquireTimeout bounds the wait for an admission slot.
func WithAcquireTimeout(d time.Duration) Option {
	return func(o *options) { o.acquireTimeout = d }
}

// WithReadyTimeout bounds the engine readiness probe at admission.
func WithReadyTimeout(d time.Duration) Option {
	return func(o *options) { o.readyTimeout = d }
}

// WithQueueSize sets the capacity of the inbound message queue and of each
// unit's audio chunk queue.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithMaxTextBytes sets the maximum size of a text message.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithMaxMessageBytes sets the websocket read limit.
func WithMaxMessageBytes(n int64) Option {
	return func(o *options) { o.maxMessageBytes = n }
}

// WithWriteTimeout sets the per-frame write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithMaxUnitChars sets the longest text unit synthesized in one go.
func WithMaxUnitChars(n int) Option {
	return func(o *options) { o.maxUnitChars = n }
}

// WithLookahead sets how many units are produced ahead of the one being
// streamed.
func WithLookahead(n int) Option {
	return func(o *options) { o.lookahead = n }
}

// WithDefaults sets the settings a connection starts with.
func WithDefaults(s session.Settings) Option {
	return func(o *options) { o.defaults = s }
}

// WithAuthorizer sets the credential check run at admission.
func WithAuthorizer(a gateway.Authorizer) Option {
	return func(o *options) { o.authorizer = a }
}

// WithLangGate enables the language gate for text messages.
func WithLangGate(g *langgate.Gate) Option {
	return func(o *options) { o.gate = g }
}

// WithMetrics records server events on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *options) { o.metricsHandler = h }
}

// WithBaseContext ties every connection to ctx; cancelling it closes all
// sessions with a going-away code.
func WithBaseContext(ctx context.Context) Option {
	return func(o *options) { o.baseCtx = ctx }
}

// WithLogger sets the slog.Logger used for connection logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies shared by all connections.
type handler struct {
	eng      engine.Engine
	voices   VoiceLister
	opts     options
	gw       *gateway.Gateway
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewHandler returns an http.Handler that serves /ws, /health, /voices and,
// when a metrics handler is configured, /metrics.
func NewHandler(eng engine.Engine, voices VoiceLister, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.baseCtx == nil {
		opts.baseCtx = context.Background()
	}

	h := &handler{
		eng:    eng,
		voices: voices,
		opts:   opts,
		log:    opts.logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 16384,
			// Access is controlled by the authorizer, not by origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	h.gw = &gateway.Gateway{
		Auth:           opts.authorizer,
		Pool:           gateway.NewPool(opts.maxConnections),
		Probe:          eng,
		AcquireTimeout: opts.acquireTimeout,
		ReadyTimeout:   opts.readyTimeout,
		Log:            opts.logger,
		OnReject: func(reason string) {
			opts.metrics.ConnectionRejected(context.Background(), reason)
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/voices", h.handleVoices)
	if opts.metricsHandler != nil {
		mux.Handle("/metrics", opts.metricsHandler)
	}
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Engine      string `json:"engine"`
	Connections int    `json:"connections"`
	Capacity    int    `json:"capacity"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Version:     buildVersion(),
		Engine:      "ready",
		Connections: h.gw.Pool.InUse(),
		Capacity:    h.gw.Pool.Cap(),
	}

	ctx := r.Context()
	if h.opts.readyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.readyTimeout)
		defer cancel()
	}
	if err := h.eng.Ready(ctx); err != nil {
		resp.Status = "degraded"
		resp.Engine = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleVoices(w http.ResponseWriter, _ *http.Request) {
	var voices []engine.Voice
	if h.voices != nil {
		voices = h.voices.ListVoices()
	}
	if voices == nil {
		voices = []engine.Voice{}
	}
	writeJSON(w, http.StatusOK, voices)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
