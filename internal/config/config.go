package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"pickasso/internal/domain"
)

const (
	SourceRelay     = "relay"
	SourceStreaming = "streaming"
	SourceNone      = "none"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config stores runtime configuration for the dashboard backend.
type Config struct {
	HTTP     HTTPConfig
	Voice    VoiceConfig
	Deepgram DeepgramConfig
	Audio    AudioConfig
	Rules    RulesConfig
	Store    StoreConfig
	Log      LogConfig
}

type HTTPConfig struct {
	Address         string
	AllowOrigins    string
	CommandRate     float64
	CommandBurst    int
	ShutdownTimeout time.Duration
}

type VoiceConfig struct {
	Source          string
	WakePhrase      string
	CommandWindow   time.Duration
	RestartDelay    time.Duration
	RestartAttempts int
	DispatchTimeout time.Duration
	Keywords        []Keyword
}

// Keyword maps an extra spoken keyword onto a command type.
type Keyword struct {
	Phrase  string
	Command domain.CommandType
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	Endpointing int
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	ChunkSize       int
}

type RulesConfig struct {
	Path           string
	WakeAliases    bool
	IterationLimit int
}

type StoreConfig struct {
	Driver        string
	DSN           string
	Migrate       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

type LogConfig struct {
	Level    string
	File     string
	NoColors bool
}

// Load resolves configuration from the environment, after merging an
// optional .env file, and falls back to sensible defaults.
func Load() (Config, error) {
	envFile := envOrDefault("PICKASSO_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file %q: %w", envFile, err)
	}

	keywords, err := parseKeywords(os.Getenv("PICKASSO_VOICE_KEYWORDS"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTP: HTTPConfig{
			Address:         envOrDefault("PICKASSO_HTTP_ADDRESS", ":8080"),
			AllowOrigins:    envOrDefault("PICKASSO_HTTP_ALLOW_ORIGINS", "*"),
			CommandRate:     envOrDefaultFloat("PICKASSO_HTTP_COMMAND_RATE", 5),
			CommandBurst:    envOrDefaultInt("PICKASSO_HTTP_COMMAND_BURST", 10),
			ShutdownTimeout: envOrDefaultMillis("PICKASSO_HTTP_SHUTDOWN_TIMEOUT_MS", 5*time.Second),
		},
		Voice: VoiceConfig{
			Source:          strings.ToLower(envOrDefault("PICKASSO_VOICE_SOURCE", SourceRelay)),
			WakePhrase:      envOrDefault("PICKASSO_WAKE_PHRASE", "hey turtle"),
			CommandWindow:   envOrDefaultMillis("PICKASSO_COMMAND_WINDOW_MS", 5*time.Second),
			RestartDelay:    envOrDefaultMillis("PICKASSO_RESTART_DELAY_MS", 100*time.Millisecond),
			RestartAttempts: envOrDefaultInt("PICKASSO_RESTART_ATTEMPTS", 3),
			DispatchTimeout: envOrDefaultMillis("PICKASSO_DISPATCH_TIMEOUT_MS", 5*time.Second),
			Keywords:        keywords,
		},
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:    strings.TrimSpace(os.Getenv("DEEPGRAM_LANGUAGE")),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
			Endpointing: envOrDefaultInt("DEEPGRAM_ENDPOINTING_MS", 0),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("PICKASSO_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("PICKASSO_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("PICKASSO_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("PICKASSO_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("PICKASSO_CHANNELS", 1),
			ChunkSize:       envOrDefaultInt("PICKASSO_AUDIO_CHUNK_SIZE", 4096),
		},
		Rules: RulesConfig{
			Path:           envOrDefault("PICKASSO_RULES_FILE", defaultRulesPath()),
			WakeAliases:    envOrDefaultBool("PICKASSO_WAKE_ALIASES", true),
			IterationLimit: envOrDefaultInt("PICKASSO_RULE_ITERATION_LIMIT", 30),
		},
		Store: StoreConfig{
			Driver:        strings.ToLower(envOrDefault("PICKASSO_STORE", StoreMemory)),
			DSN:           strings.TrimSpace(os.Getenv("PICKASSO_DATABASE_URL")),
			Migrate:       envOrDefaultBool("PICKASSO_DATABASE_MIGRATE", true),
			RedisAddr:     envOrDefault("PICKASSO_REDIS_ADDRESS", "localhost:6379"),
			RedisPassword: os.Getenv("PICKASSO_REDIS_PASSWORD"),
			RedisDB:       envOrDefaultInt("PICKASSO_REDIS_DB", 0),
			RedisPrefix:   envOrDefault("PICKASSO_REDIS_PREFIX", "pickasso"),
		},
		Log: LogConfig{
			Level:    envOrDefault("PICKASSO_LOG_LEVEL", "info"),
			File:     strings.TrimSpace(os.Getenv("PICKASSO_LOG_FILE")),
			NoColors: envOrDefaultBool("PICKASSO_LOG_NO_COLORS", false),
		},
	}

	clampDefaults(&cfg)

	switch cfg.Voice.Source {
	case SourceRelay, SourceStreaming, SourceNone:
	default:
		return Config{}, fmt.Errorf("unknown voice source %q", cfg.Voice.Source)
	}
	switch cfg.Store.Driver {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if cfg.Store.DSN == "" {
			return Config{}, errors.New("PICKASSO_DATABASE_URL is required for the postgres store")
		}
	default:
		return Config{}, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	return cfg, nil
}

func clampDefaults(cfg *Config) {
	if cfg.HTTP.CommandRate <= 0 {
		cfg.HTTP.CommandRate = 5
	}
	if cfg.HTTP.CommandBurst <= 0 {
		cfg.HTTP.CommandBurst = 10
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 5 * time.Second
	}
	if cfg.Voice.CommandWindow <= 0 {
		cfg.Voice.CommandWindow = 5 * time.Second
	}
	if cfg.Voice.RestartAttempts <= 0 {
		cfg.Voice.RestartAttempts = 3
	}
	if cfg.Voice.DispatchTimeout <= 0 {
		cfg.Voice.DispatchTimeout = 5 * time.Second
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Store.RedisDB < 0 {
		cfg.Store.RedisDB = 0
	}
}

// parseKeywords reads "fetch=GRAB, go=MOVE".
func parseKeywords(raw string) ([]Keyword, error) {
	var out []Keyword
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		phrase, command, ok := strings.Cut(pair, "=")
		phrase = strings.TrimSpace(phrase)
		if !ok || phrase == "" {
			return nil, fmt.Errorf("invalid keyword mapping %q", pair)
		}
		commandType, known := domain.ParseCommandType(strings.TrimSpace(command))
		if !known {
			return nil, fmt.Errorf("keyword %q maps to unknown command %q", phrase, command)
		}
		out = append(out, Keyword{Phrase: phrase, Command: commandType})
	}
	return out, nil
}

func defaultRulesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "pickasso", "phrases.rules")
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// envOrDefaultMillis accepts zero; negative or malformed values fall back.
func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	ms := envOrDefaultInt(key, -1)
	if ms < 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
