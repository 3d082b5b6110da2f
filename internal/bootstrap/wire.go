package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"pickasso/internal/audio"
	"pickasso/internal/config"
	"pickasso/internal/ports"
	"pickasso/internal/providers/deepgram"
	"pickasso/internal/rules"
	"pickasso/internal/store/memory"
	"pickasso/internal/store/postgres"
	"pickasso/internal/store/redis"
	"pickasso/internal/transcript"
	"pickasso/internal/usecase"
)

// memoryCapacity bounds the in-process command log.
const memoryCapacity = 1000

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Store      ports.Store
	Dispatcher *usecase.CommandDispatcher
	Machine    *usecase.VoiceMachine
	// Relay is set only when transcripts arrive over the relay websocket.
	Relay *transcript.Relay

	closers []func() error
}

// Close releases the source and the store, in that order.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build wires all backend dependencies for cfg.
func Build(ctx context.Context, cfg config.Config, logger logrus.FieldLogger, eventSink ports.EventSink) (*Services, error) {
	rulesEngine, err := rules.Load(rules.Config{
		Path:        cfg.Rules.Path,
		WakeAliases: cfg.Rules.WakeAliases,
		PassLimit:   cfg.Rules.IterationLimit,
	})
	if err != nil {
		return nil, err
	}

	services := &Services{Config: cfg}

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	services.Store = store
	services.closers = append(services.closers, store.Close)

	keywords := keywordRules(cfg.Voice.Keywords)
	source, relay := buildSource(cfg, keywords)
	if relay != nil {
		services.closers = append(services.closers, relay.Close)
		if cfg.Voice.Source == config.SourceRelay {
			services.Relay = relay
		}
	}

	services.Dispatcher = usecase.NewCommandDispatcher(store)
	services.Machine = usecase.NewVoiceMachine(source, services.Dispatcher, rulesEngine, eventSink, usecase.Config{
		WakePhrase:      cfg.Voice.WakePhrase,
		CommandWindow:   cfg.Voice.CommandWindow,
		RestartDelay:    cfg.Voice.RestartDelay,
		RestartAttempts: cfg.Voice.RestartAttempts,
		DispatchTimeout: cfg.Voice.DispatchTimeout,
		Keywords:        keywords,
	})

	logger.WithFields(logrus.Fields{
		"store":  cfg.Store.Driver,
		"source": cfg.Voice.Source,
		"wake":   cfg.Voice.WakePhrase,
	}).Info("Services assembled")
	return services, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger logrus.FieldLogger) (ports.Store, error) {
	switch cfg.Driver {
	case config.StorePostgres:
		store, err := postgres.Open(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := store.Migrate(ctx); err != nil {
				_ = store.Close()
				return nil, err
			}
		}
		return store, nil
	case config.StoreRedis:
		return redis.Open(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}, logger)
	case config.StoreMemory, "":
		return memory.New(memoryCapacity), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// buildSource returns the transcript source for cfg. The relay is returned
// separately whenever one was created so it can be closed.
func buildSource(cfg config.Config, keywords []usecase.KeywordRule) (ports.TranscriptSource, *transcript.Relay) {
	switch cfg.Voice.Source {
	case config.SourceStreaming:
		hints := make([]string, 0, len(keywords))
		for _, rule := range keywords {
			hints = append(hints, rule.Keyword)
		}
		provider := deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
			Endpointing: cfg.Deepgram.Endpointing,
			Keywords:    hints,
		})
		return transcript.NewStreaming(
			audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
			provider,
			transcript.StreamingConfig{
				Audio: ports.AudioConfig{
					SampleRate:  cfg.Audio.SampleRate,
					Channels:    cfg.Audio.Channels,
					InputFormat: cfg.Audio.InputFormat,
					InputDevice: cfg.Audio.InputDevice,
				},
				Stream: ports.StreamingConfig{
					SampleRate:     cfg.Audio.SampleRate,
					Channels:       cfg.Audio.Channels,
					Encoding:       "linear16",
					InterimResults: true,
				},
				ChunkSize: cfg.Audio.ChunkSize,
			},
		), nil
	case config.SourceNone:
		relay := transcript.NewRelay(false)
		return relay, relay
	default:
		relay := transcript.NewRelay(true)
		return relay, relay
	}
}

// keywordRules puts configured keywords ahead of the built-in vocabulary.
func keywordRules(extra []config.Keyword) []usecase.KeywordRule {
	rules := make([]usecase.KeywordRule, 0, len(extra)+len(usecase.DefaultKeywordRules()))
	for _, keyword := range extra {
		rules = append(rules, usecase.KeywordRule{Keyword: keyword.Phrase, Type: keyword.Command})
	}
	return append(rules, usecase.DefaultKeywordRules()...)
}
