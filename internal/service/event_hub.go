package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultHubBuffer = 32

// EventHub fans homework events out to live per-teacher subscribers.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan HomeworkEvent]struct{}
	buffer      int
	logger      zerolog.Logger
}

// NewEventHub builds an empty hub. Each subscriber gets a buffered channel of
// the given size; events for a full subscriber are dropped.
func NewEventHub(buffer int, logger zerolog.Logger) *EventHub {
	if buffer <= 0 {
		buffer = defaultHubBuffer
	}

	return &EventHub{
		subscribers: make(map[uint]map[chan HomeworkEvent]struct{}),
		buffer:      buffer,
		logger:      logger.With().Str("component", "event_hub").Logger(),
	}
}

// Subscribe registers a listener for one teacher's events. The returned
// function unsubscribes and closes the channel.
func (h *EventHub) Subscribe(teacherID uint) (<-chan HomeworkEvent, func()) {
	ch := make(chan HomeworkEvent, h.buffer)

	h.mu.Lock()
	if h.subscribers[teacherID] == nil {
		h.subscribers[teacherID] = make(map[chan HomeworkEvent]struct{})
	}
	h.subscribers[teacherID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subscribers[teacherID], ch)
			if len(h.subscribers[teacherID]) == 0 {
				delete(h.subscribers, teacherID)
			}
			close(ch)
		})
	}
}

// Subscribers reports how many listeners a teacher currently has.
func (h *EventHub) Subscribers(teacherID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[teacherID])
}

// Publish delivers the event to the teacher's subscribers without blocking.
func (h *EventHub) Publish(_ context.Context, event HomeworkEvent) {
	if event.TeacherID == 0 {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[event.TeacherID] {
		select {
		case ch <- event:
		default:
			h.logger.Warn().Uint("teacher_id", event.TeacherID).Str("type", event.Type).Msg("dropping event for slow subscriber")
		}
	}
}

// Relay forwards events published by other nodes on the Redis channel into
// the hub. Events stamped with localSource were already delivered locally.
// It returns once the subscription is confirmed.
func (h *EventHub) Relay(ctx context.Context, client *redis.Client, channel, localSource string) error {
	if client == nil || channel == "" {
		return nil
	}

	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	go func() {
		defer func() {
			_ = pubsub.Close()
		}()

		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, redis.ErrClosed) {
					h.logger.Error().Err(err).Msg("event relay subscription closed")
				}
				return
			}

			var event HomeworkEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				h.logger.Warn().Err(err).Msg("invalid relayed event")
				continue
			}
			if event.Source != "" && event.Source == localSource {
				continue
			}
			h.Publish(ctx, event)
		}
	}()

	h.logger.Info().Str("channel", channel).Msg("event relay started")
	return nil
}
