package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"pickasso/internal/domain"
	"pickasso/internal/hub"
	"pickasso/internal/log"
	"pickasso/internal/usecase"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	body := fiber.Map{"status": "ok"}
	if s.deps.Voice != nil {
		body["voice"] = s.deps.Voice.Status().State
	}
	return c.JSON(body)
}

func (s *Server) handleGetStatus(c *fiber.Ctx) error {
	snapshot, err := s.deps.Store.Snapshot(c.UserContext())
	if err != nil {
		return err
	}
	if snapshot == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "robot status is not initialized"})
	}
	return c.JSON(snapshot)
}

func (s *Server) handlePutStatus(c *fiber.Ctx) error {
	var req StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if err := s.deps.Validator.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	snapshot := req.toDomain()
	if err := s.deps.Store.ReplaceSnapshot(c.UserContext(), snapshot); err != nil {
		return err
	}
	if s.deps.Events != nil {
		_ = s.deps.Events.BroadcastJSON(hub.Event{Type: "robot_status", Payload: snapshot, Time: nowMillis()})
	}
	return c.JSON(snapshot)
}

func (s *Server) handleListCommands(c *fiber.Ctx) error {
	limit := defaultCommandLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a positive integer"})
		}
		limit = parsed
	}
	if limit > maxCommandLimit {
		limit = maxCommandLimit
	}

	records, err := s.deps.Store.RecentCommands(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(records)
}

func (s *Server) handlePostCommand(c *fiber.Ctx) error {
	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if err := s.deps.Validator.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	commandType, _ := domain.ParseCommandType(req.Type)
	payload := req.Payload
	if payload == nil {
		payload = map[string]any{"manual": true}
	}

	record, err := s.deps.Dispatcher.Dispatch(c.UserContext(), commandType, payload)
	if err != nil && record.ID == "" {
		return err
	}
	if err != nil && !record.Success {
		traceID := log.ErrorWithTraceID(s.deps.Logger, log.Fields{
			log.RequestIDKey: requestIDFrom(c),
			"command":        commandType,
			"error":          err.Error(),
		}, "Manual command could not be recorded")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":    record.Reason,
			"trace_id": traceID,
			"command":  record,
		})
	}
	if errors.Is(err, usecase.ErrStoreUnavailable) {
		// The command is recorded; only the snapshot update failed.
		s.deps.Logger.WithFields(log.Fields{
			log.RequestIDKey: requestIDFrom(c),
			"command":        commandType,
			"error":          err.Error(),
		}).Warn("Manual command recorded without snapshot update")
	}

	if s.deps.Notifier != nil {
		s.deps.Notifier.CommandDispatched(record)
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

func (s *Server) handleVoice(c *fiber.Ctx) error {
	if s.deps.Voice == nil {
		return c.JSON(domain.VoiceStatus{State: domain.ListeningStateOffline})
	}
	return c.JSON(s.deps.Voice.Status())
}

func (s *Server) handleVocabulary(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"wakePhrase":      s.cfg.WakePhrase,
		"commandWindowMs": s.cfg.CommandWindow.Milliseconds(),
		"commands":        domain.Vocabulary(),
	})
}

func validationFailed(c *fiber.Ctx, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":  "validation failed",
		"fields": fields,
	})
}
