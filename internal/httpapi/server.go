// Package httpapi serves the dashboard REST API and its websockets.
package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"pickasso/internal/domain"
	"pickasso/internal/hub"
	"pickasso/internal/log"
	"pickasso/internal/ports"
)

const (
	defaultCommandLimit = 5
	maxCommandLimit     = 50
)

// VoiceReader exposes the voice session summary.
type VoiceReader interface {
	Status() domain.VoiceStatus
}

// TranscriptRelay accepts results from a remote recognizer.
type TranscriptRelay interface {
	Push(ctx context.Context, final bool, text string) error
	End(ctx context.Context, cause error) error
}

// CommandNotifier hears about commands dispatched over HTTP.
type CommandNotifier interface {
	CommandDispatched(record domain.CommandRecord)
}

type Config struct {
	AllowOrigins  string
	CommandRate   float64
	CommandBurst  int
	WakePhrase    string
	CommandWindow time.Duration
}

type Deps struct {
	Store      ports.Store
	Dispatcher ports.CommandDispatcher
	Voice      VoiceReader
	Relay      TranscriptRelay
	Events     *hub.Hub
	Notifier   CommandNotifier
	Logger     logrus.FieldLogger
	Validator  *validator.Validate
}

type Server struct {
	app  *fiber.App
	deps Deps
	cfg  Config
}

func New(deps Deps, cfg Config) *Server {
	if deps.Validator == nil {
		deps.Validator = NewValidator()
	}
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if cfg.CommandRate <= 0 {
		cfg.CommandRate = 5
	}
	if cfg.CommandBurst <= 0 {
		cfg.CommandBurst = 10
	}
	if cfg.AllowOrigins == "" {
		cfg.AllowOrigins = "*"
	}

	s := &Server{deps: deps, cfg: cfg}
	app := fiber.New(fiber.Config{
		AppName:               "Pickasso Dashboard",
		DisableStartupMessage: true,
		StrictRouting:         true,
		CaseSensitive:         true,
		JSONEncoder:           jsoniter.Marshal,
		JSONDecoder:           jsoniter.Unmarshal,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(requestID())
	app.Use(requestLogger(deps.Logger))
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowOrigins}))

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleGetStatus)
	api.Put("/status", s.handlePutStatus)
	api.Get("/commands", s.handleListCommands)
	api.Post("/commands", newIPRateLimiter(cfg.CommandRate, cfg.CommandBurst, deps.Logger).handler, s.handlePostCommand)
	api.Get("/voice", s.handleVoice)
	api.Get("/voice/vocabulary", s.handleVocabulary)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	if deps.Events != nil {
		app.Get("/ws/events", websocket.New(s.handleEventsWS))
	}
	if deps.Relay != nil {
		app.Get("/ws/transcript", websocket.New(s.handleTranscriptWS))
	}

	s.app = app
	return s
}

// App exposes the fiber app, mostly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.deps.Logger.WithField("addr", addr).Info("HTTP server listening")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// handleError turns unhandled errors into JSON. Server errors get a trace
// id that also appears in the log.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	traceID := log.ErrorWithTraceID(s.deps.Logger, log.Fields{
		log.RequestIDKey: requestIDFrom(c),
		"path":           c.Path(),
		"error":          err.Error(),
	}, "Request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":    "internal server error",
		"trace_id": traceID,
	})
}
