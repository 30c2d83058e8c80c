package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studio-homework-api/internal/service"
)

const (
	eventStreamPingInterval = 30 * time.Second
	eventStreamWriteTimeout = 10 * time.Second
)

// EventStreamHandler pushes a teacher's homework and attribution events over
// a websocket.
type EventStreamHandler struct {
	hub    *service.EventHub
	logger zerolog.Logger
}

// NewEventStreamHandler builds an event stream handler instance.
func NewEventStreamHandler(hub *service.EventHub, logger zerolog.Logger) *EventStreamHandler {
	return &EventStreamHandler{
		hub:    hub,
		logger: logger.With().Str("component", "event_stream_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *EventStreamHandler) Register(router fiber.Router) {
	router.Use("/events/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/events/ws", websocket.New(h.stream))
}

func (h *EventStreamHandler) stream(conn *websocket.Conn) {
	teacherID, _ := conn.Locals("user_id").(uint)
	if teacherID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	events, unsubscribe := h.hub.Subscribe(teacherID)
	defer unsubscribe()

	// The read loop only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventStreamPingInterval)
	defer ticker.Stop()

	h.logger.Info().Uint("teacher_id", teacherID).Msg("event stream connected")
	defer h.logger.Info().Uint("teacher_id", teacherID).Msg("event stream disconnected")

	for {
		select {
		case <-closed:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventStreamWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventStreamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
