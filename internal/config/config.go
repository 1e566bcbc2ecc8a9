package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	Server    ServerConfig    `mapstructure:"server"`
	Engine    EngineConfig    `mapstructure:"engine"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Batch     BatchConfig     `mapstructure:"batch"`
	LangGate  LangGateConfig  `mapstructure:"langgate"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	ListenAddr       string   `mapstructure:"listen_addr"`
	ShutdownTimeout  int      `mapstructure:"shutdown_timeout"`
	MaxConnections   int      `mapstructure:"max_connections"`
	IdleTimeout      int      `mapstructure:"idle_timeout"`
	TTL              int      `mapstructure:"ttl"`
	WatchdogTickMS   int      `mapstructure:"watchdog_tick_ms"`
	AcquireTimeoutMS int      `mapstructure:"acquire_timeout_ms"`
	QueueMaxSize     int      `mapstructure:"queue_max_size"`
	MaxTextBytes     int      `mapstructure:"max_text_bytes"`
	MaxMessageBytes  int      `mapstructure:"max_message_bytes"`
	WriteTimeoutMS   int      `mapstructure:"write_timeout_ms"`
	AuthTokens       []string `mapstructure:"auth_tokens"`
}

type EngineConfig struct {
	Backend        string   `mapstructure:"backend"`
	CLIPath        string   `mapstructure:"cli_path"`
	CLIArgs        []string `mapstructure:"cli_args"`
	CLIWAVOutput   bool     `mapstructure:"cli_wav_output"`
	URL            string   `mapstructure:"url"`
	SampleRate     int      `mapstructure:"sample_rate"`
	ChunkBytes     int      `mapstructure:"chunk_bytes"`
	ReadyTimeoutMS int      `mapstructure:"ready_timeout_ms"`
}

type TTSConfig struct {
	DefaultVoice      string   `mapstructure:"default_voice"`
	Voices            []string `mapstructure:"voices"`
	VoiceManifest     string   `mapstructure:"voice_manifest"`
	MaxUnitChars      int      `mapstructure:"max_unit_chars"`
	Temperature       float64  `mapstructure:"temperature"`
	TopP              float64  `mapstructure:"top_p"`
	RepetitionPenalty float64  `mapstructure:"repetition_penalty"`
	Lookahead         int      `mapstructure:"lookahead"`
}

type BatchConfig struct {
	MaxBatchSize  int `mapstructure:"max_batch_size"`
	MaxDelayMS    int `mapstructure:"max_delay_ms"`
	WaitTimeoutMS int `mapstructure:"wait_timeout_ms"`
}

type LangGateConfig struct {
	Allowed []string `mapstructure:"allowed"`
}

type TelemetryConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			ListenAddr:       ":8080",
			ShutdownTimeout:  30,
			MaxConnections:   16,
			IdleTimeout:      60,
			TTL:              900,
			WatchdogTickMS:   1000,
			AcquireTimeoutMS: 500,
			QueueMaxSize:     64,
			MaxTextBytes:     4096,
			MaxMessageBytes:  65536,
			WriteTimeoutMS:   5000,
			AuthTokens:       nil,
		},
		Engine: EngineConfig{
			Backend:        BackendTone,
			CLIPath:        "",
			CLIArgs:        nil,
			CLIWAVOutput:   false,
			URL:            "http://127.0.0.1:5005",
			SampleRate:     24000,
			ChunkBytes:     4800,
			ReadyTimeoutMS: 500,
		},
		TTS: TTSConfig{
			DefaultVoice:      "tara",
			Voices:            []string{"tara", "leah", "jess", "leo", "dan", "mia", "zac", "zoe"},
			VoiceManifest:     "",
			MaxUnitChars:      200,
			Temperature:       0.6,
			TopP:              0.8,
			RepetitionPenalty: 1.1,
			Lookahead:         1,
		},
		Batch: BatchConfig{
			MaxBatchSize:  8,
			MaxDelayMS:    10,
			WaitTimeoutMS: 250,
		},
		LangGate: LangGateConfig{
			Allowed: nil,
		},
		Telemetry: TelemetryConfig{
			MetricsEnabled: true,
		},
	}
}

// Durations derived from the integer second/millisecond settings.

func (s ServerConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

func (s ServerConfig) TTLDuration() time.Duration {
	return time.Duration(s.TTL) * time.Second
}

func (s ServerConfig) WatchdogTick() time.Duration {
	return time.Duration(s.WatchdogTickMS) * time.Millisecond
}

func (s ServerConfig) AcquireTimeout() time.Duration {
	return time.Duration(s.AcquireTimeoutMS) * time.Millisecond
}

func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (e EngineConfig) ReadyTimeout() time.Duration {
	return time.Duration(e.ReadyTimeoutMS) * time.Millisecond
}

func (b BatchConfig) MaxDelay() time.Duration {
	return time.Duration(b.MaxDelayMS) * time.Millisecond
}

func (b BatchConfig) WaitTimeout() time.Duration {
	return time.Duration(b.WaitTimeoutMS) * time.Millisecond
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.Int("server-max-connections", defaults.Server.MaxConnections, "Maximum concurrent streaming connections")
	fs.Int("server-idle-timeout", defaults.Server.IdleTimeout, "Close connections idle for this many seconds (0 disables)")
	fs.Int("server-ttl", defaults.Server.TTL, "Close connections older than this many seconds (0 disables)")
	fs.Int("server-watchdog-tick-ms", defaults.Server.WatchdogTickMS, "Watchdog wake interval in milliseconds")
	fs.Int("server-acquire-timeout-ms", defaults.Server.AcquireTimeoutMS, "Admission slot wait in milliseconds")
	fs.Int("server-queue-max-size", defaults.Server.QueueMaxSize, "Bounded queue size for inbound messages and audio chunks")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum text message size in bytes")
	fs.Int("server-max-message-bytes", defaults.Server.MaxMessageBytes, "Maximum inbound websocket frame size in bytes")
	fs.Int("server-write-timeout-ms", defaults.Server.WriteTimeoutMS, "Per-frame websocket write deadline in milliseconds")
	fs.StringSlice("server-auth-tokens", defaults.Server.AuthTokens, "Accepted bearer tokens (empty disables auth)")
	fs.String("engine-backend", defaults.Engine.Backend, "Synthesis backend (tone|cli|http)")
	fs.String("engine-cli-path", defaults.Engine.CLIPath, "Path to the synthesis executable for the cli backend")
	fs.StringSlice("engine-cli-args", defaults.Engine.CLIArgs, "Arguments passed to the synthesis executable")
	fs.Bool("engine-cli-wav-output", defaults.Engine.CLIWAVOutput, "Executable writes a WAV header before PCM")
	fs.String("engine-url", defaults.Engine.URL, "Base URL of the http inference backend")
	fs.Int("engine-sample-rate", defaults.Engine.SampleRate, "Engine output sample rate in Hz")
	fs.Int("engine-chunk-bytes", defaults.Engine.ChunkBytes, "Read size for streamed engine output")
	fs.Int("engine-ready-timeout-ms", defaults.Engine.ReadyTimeoutMS, "Engine readiness probe timeout in milliseconds")
	fs.String("tts-default-voice", defaults.TTS.DefaultVoice, "Voice used until a client selects one")
	fs.StringSlice("tts-voices", defaults.TTS.Voices, "Voices clients may select")
	fs.String("tts-voice-manifest", defaults.TTS.VoiceManifest, "JSON voice manifest (overrides --tts-voices)")
	fs.Int("tts-max-unit-chars", defaults.TTS.MaxUnitChars, "Maximum characters per synthesized unit (0 disables splitting)")
	fs.Float64("tts-temperature", defaults.TTS.Temperature, "Default sampling temperature")
	fs.Float64("tts-top-p", defaults.TTS.TopP, "Default nucleus sampling top_p")
	fs.Float64("tts-repetition-penalty", defaults.TTS.RepetitionPenalty, "Default repetition penalty")
	fs.Int("tts-lookahead", defaults.TTS.Lookahead, "Units synthesized ahead of the one being streamed")
	fs.Int("batch-max-batch-size", defaults.Batch.MaxBatchSize, "Maximum classification batch size")
	fs.Int("batch-max-delay-ms", defaults.Batch.MaxDelayMS, "Maximum classification batching delay in milliseconds")
	fs.Int("batch-wait-timeout-ms", defaults.Batch.WaitTimeoutMS, "Caller wait bound for classification results in milliseconds")
	fs.StringSlice("langgate-allowed", defaults.LangGate.Allowed, "Allowed script labels (empty disables the gate)")
	fs.Bool("telemetry-metrics-enabled", defaults.Telemetry.MetricsEnabled, "Expose Prometheus metrics on /metrics")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetEnvPrefix("ORPHEUSTTS")
	replacer := strings.NewReplacer("-", "_", ".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("orpheustts")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if _, err := NormalizeBackend(cfg.Engine.Backend); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.max_connections", c.Server.MaxConnections)
	v.SetDefault("server.idle_timeout", c.Server.IdleTimeout)
	v.SetDefault("server.ttl", c.Server.TTL)
	v.SetDefault("server.watchdog_tick_ms", c.Server.WatchdogTickMS)
	v.SetDefault("server.acquire_timeout_ms", c.Server.AcquireTimeoutMS)
	v.SetDefault("server.queue_max_size", c.Server.QueueMaxSize)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.max_message_bytes", c.Server.MaxMessageBytes)
	v.SetDefault("server.write_timeout_ms", c.Server.WriteTimeoutMS)
	v.SetDefault("server.auth_tokens", c.Server.AuthTokens)
	v.SetDefault("engine.backend", c.Engine.Backend)
	v.SetDefault("engine.cli_path", c.Engine.CLIPath)
	v.SetDefault("engine.cli_args", c.Engine.CLIArgs)
	v.SetDefault("engine.cli_wav_output", c.Engine.CLIWAVOutput)
	v.SetDefault("engine.url", c.Engine.URL)
	v.SetDefault("engine.sample_rate", c.Engine.SampleRate)
	v.SetDefault("engine.chunk_bytes", c.Engine.ChunkBytes)
	v.SetDefault("engine.ready_timeout_ms", c.Engine.ReadyTimeoutMS)
	v.SetDefault("tts.default_voice", c.TTS.DefaultVoice)
	v.SetDefault("tts.voices", c.TTS.Voices)
	v.SetDefault("tts.voice_manifest", c.TTS.VoiceManifest)
	v.SetDefault("tts.max_unit_chars", c.TTS.MaxUnitChars)
	v.SetDefault("tts.temperature", c.TTS.Temperature)
	v.SetDefault("tts.top_p", c.TTS.TopP)
	v.SetDefault("tts.repetition_penalty", c.TTS.RepetitionPenalty)
	v.SetDefault("tts.lookahead", c.TTS.Lookahead)
	v.SetDefault("batch.max_batch_size", c.Batch.MaxBatchSize)
	v.SetDefault("batch.max_delay_ms", c.Batch.MaxDelayMS)
	v.SetDefault("batch.wait_timeout_ms", c.Batch.WaitTimeoutMS)
	v.SetDefault("langgate.allowed", c.LangGate.Allowed)
	v.SetDefault("telemetry.metrics_enabled", c.Telemetry.MetricsEnabled)
}

// bindFlags binds every known key to the flag of the same name with dots
// and underscores turned into dashes, so server.listen_addr is driven by
// --server-listen-addr. Binding by key keeps nested config file values
// visible to Unmarshal.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, key := range v.AllKeys() {
		f := fs.Lookup(flagName(key))
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func flagName(key string) string {
	return strings.NewReplacer(".", "-", "_", "-").Replace(key)
}
