package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"

	"pickasso/internal/hub"
	"pickasso/internal/log"
)

const relayPushTimeout = 5 * time.Second

var errRelayDisconnected = errors.New("transcript relay disconnected")

func (s *Server) handleEventsWS(conn *websocket.Conn) {
	hub.NewClient(s.deps.Events, conn).Serve()
}

// handleTranscriptWS feeds browser recognition results into the relay.
// Closing the socket ends the current recognition session.
func (s *Server) handleTranscriptWS(conn *websocket.Conn) {
	logger := s.deps.Logger.WithField("remote", conn.RemoteAddr().String())
	logger.Info("Transcript relay connected")

	var cause error = errRelayDisconnected
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), relayPushTimeout)
		defer cancel()
		_ = s.deps.Relay.End(ctx, cause)
		_ = conn.Close()
		logger.Info("Transcript relay disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg relayMessage
		if err := jsoniter.Unmarshal(data, &msg); err != nil {
			s.replyError(conn, "invalid message")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), relayPushTimeout)
		switch msg.Type {
		case "result":
			if err := s.deps.Relay.Push(ctx, msg.Final, msg.Text); err != nil {
				logger.WithError(err).Debug("Dropped relay result")
				s.replyError(conn, err.Error())
			}
		case "end":
			cause = nil
			if detail := strings.TrimSpace(msg.Error); detail != "" {
				cause = errors.New(detail)
			}
			if err := s.deps.Relay.End(ctx, cause); err != nil {
				logger.WithError(err).Warn("Failed to end relay session")
			}
			cause = errRelayDisconnected
		default:
			s.replyError(conn, "unknown message type "+msg.Type)
		}
		cancel()
	}
}

func (s *Server) replyError(conn *websocket.Conn, message string) {
	data, err := jsoniter.Marshal(map[string]string{"type": "error", "message": message})
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.deps.Logger.WithFields(log.Fields{"error": err.Error()}).Debug("Failed to reply on relay socket")
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
