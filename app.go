package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pickasso/internal/bootstrap"
	"pickasso/internal/config"
	"pickasso/internal/domain"
	"pickasso/internal/httpapi"
	"pickasso/internal/hub"
	"pickasso/internal/log"
	"pickasso/internal/ports"
)

const (
	eventListening  = "pickasso:listening"
	eventTranscript = "pickasso:transcript"
	eventCommand    = "pickasso:command"
	eventError      = "pickasso:error"
)

type broadcaster interface {
	BroadcastJSON(v any) error
}

// App is the dashboard backend root.
type App struct {
	cfg    config.Config
	log    *logrus.Logger
	hub    *hub.Hub
	events broadcaster

	wakeLabel string
}

func NewApp(cfg config.Config, logger *logrus.Logger) *App {
	h := hub.New("events", logger)
	return &App{
		cfg:       cfg,
		log:       logger,
		hub:       h,
		events:    h,
		wakeLabel: titleWords(cfg.Voice.WakePhrase),
	}
}

// Run serves until ctx ends, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	services, err := bootstrap.Build(ctx, a.cfg, a.log, a)
	if err != nil {
		a.VoiceError(domain.ErrorCodeStartup, err.Error())
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to release services")
		}
	}()

	hubCtx, stopHub := context.WithCancel(context.Background())
	go a.hub.Run(hubCtx)
	defer func() {
		stopHub()
		<-a.hub.Done()
	}()

	if err := services.Dispatcher.Initialize(ctx); err != nil {
		// Voice stays usable; dispatches will report the store error.
		a.VoiceError(domain.ErrorCodeStore, err.Error())
	}

	if err := services.Machine.Start(ctx); err != nil {
		entry := a.log.WithError(err)
		if errors.Is(err, ports.ErrSourceUnsupported) {
			entry.Warn("Voice commands unavailable; manual commands still work")
		} else {
			entry.Error("Voice commands failed to start")
		}
	}
	defer func() { _ = services.Machine.Stop() }()

	server := httpapi.New(httpapi.Deps{
		Store:      services.Store,
		Dispatcher: services.Dispatcher,
		Voice:      services.Machine,
		Relay:      relayOrNil(services),
		Events:     a.hub,
		Notifier:   a,
		Logger:     a.log,
	}, httpapi.Config{
		AllowOrigins:  a.cfg.HTTP.AllowOrigins,
		CommandRate:   a.cfg.HTTP.CommandRate,
		CommandBurst:  a.cfg.HTTP.CommandBurst,
		WakePhrase:    a.cfg.Voice.WakePhrase,
		CommandWindow: a.cfg.Voice.CommandWindow,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Listen(a.cfg.HTTP.Address)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("HTTP shutdown did not complete cleanly")
	}
	return nil
}

// relayOrNil avoids handing the server a typed nil.
func relayOrNil(services *bootstrap.Services) httpapi.TranscriptRelay {
	if services.Relay == nil {
		return nil
	}
	return services.Relay
}

// ListeningStateChanged announces voice lifecycle changes.
func (a *App) ListeningStateChanged(state domain.ListeningState, reason domain.ListeningReason) {
	message := a.reasonMessage(reason)
	a.log.WithFields(log.Fields{"state": state, "reason": reason}).Info(messageOr(message, "Listening state changed"))
	a.broadcast(eventListening, map[string]string{
		"state":  string(state),
		"reason": string(reason),
	}, message)
}

func (a *App) TranscriptChanged(text string) {
	a.broadcast(eventTranscript, map[string]string{"text": text}, "")
}

// CommandDispatched reports voice and manual commands alike.
func (a *App) CommandDispatched(record domain.CommandRecord) {
	message := commandMessage(record)
	a.log.WithFields(log.Fields{"id": record.ID, "command": record.Type, "reason": record.Reason}).Info(message)
	a.broadcast(eventCommand, record, message)
}

func (a *App) VoiceError(code domain.ErrorCode, detail string) {
	message := errorMessage(code, detail)
	a.log.WithFields(log.Fields{"code": code, "detail": detail}).Warn(message)
	a.broadcast(eventError, map[string]string{
		"code":   string(code),
		"detail": detail,
	}, message)
}

func (a *App) broadcast(eventType string, payload any, message string) {
	if a.events == nil {
		return
	}
	err := a.events.BroadcastJSON(hub.Event{
		Type:    eventType,
		Payload: payload,
		Message: message,
		Time:    time.Now().UnixMilli(),
	})
	if err != nil {
		a.log.WithError(err).Warn("Failed to encode dashboard event")
	}
}

func (a *App) reasonMessage(reason domain.ListeningReason) string {
	switch reason {
	case domain.ListeningReasonSourceStarted:
		return fmt.Sprintf("Listening for '%s'", a.wakeLabel)
	case domain.ListeningReasonWakeDetected:
		return "Hey! I'm listening for your command"
	case domain.ListeningReasonWindowExpired:
		return "No command received"
	case domain.ListeningReasonCommandRejected:
		return "Command not recognized"
	case domain.ListeningReasonSourceUnavailable:
		return "Voice commands are offline"
	case domain.ListeningReasonSourceLost:
		return "Speech recognition stopped"
	case domain.ListeningReasonStopped:
		return "Voice commands stopped"
	default:
		return ""
	}
}

func commandMessage(record domain.CommandRecord) string {
	if record.IsManual() {
		return fmt.Sprintf("Executing manual command: %s", record.Type)
	}
	return fmt.Sprintf("Executing: %s", record.Type)
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeSourceUnavailable:
		return "Speech recognition not supported in this browser"
	case domain.ErrorCodeSourceRestart:
		return "Speech recognition could not restart"
	case domain.ErrorCodeRules:
		return "Phrase rules failed"
	case domain.ErrorCodeDispatch:
		return "Command could not be executed"
	case domain.ErrorCodeStore:
		return "Robot status store unavailable"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

func messageOr(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

// titleWords turns "hey turtle" into "Hey Turtle".
func titleWords(phrase string) string {
	words := strings.Fields(phrase)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
