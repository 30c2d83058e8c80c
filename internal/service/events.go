package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Domain event types fanned out to the broker.
const (
	EventHomeworkStarted     = "homework.started"
	EventHomeworkRestarted   = "homework.restarted"
	EventHomeworkCompleted   = "homework.completed"
	EventHomeworkCancelled   = "homework.cancelled"
	EventAttributionRecorded = "attribution.recorded"
)

// HomeworkEvent is the payload published for lifecycle and attribution changes.
type HomeworkEvent struct {
	Type         string    `json:"type"`
	Source       string    `json:"source"`
	TeacherID    uint      `json:"teacher_id,omitempty"`
	SubmissionID uint      `json:"submission_id,omitempty"`
	HomeworkID   uint      `json:"homework_id,omitempty"`
	TrackingCode string    `json:"tracking_code,omitempty"`
	FlowID       *uint     `json:"flow_id,omitempty"`
	Kind         string    `json:"kind,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// EventPublisher fans domain events out after they are committed.
type EventPublisher interface {
	Publish(ctx context.Context, event HomeworkEvent)
}

// FanoutPublisher delivers every event to each publisher in order.
type FanoutPublisher []EventPublisher

func (f FanoutPublisher) Publish(ctx context.Context, event HomeworkEvent) {
	for _, publisher := range f {
		if publisher != nil {
			publisher.Publish(ctx, event)
		}
	}
}

// BrokerPublisher writes events to Redis pub/sub and NATS, stamped with the
// node id of this process.
type BrokerPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger
}

// NewBrokerPublisher publishes to "<base>:events" on Redis and
// "<base>.events" on NATS. Either client may be nil.
func NewBrokerPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *BrokerPublisher {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &BrokerPublisher{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		nodeID:       uuid.NewString(),
		logger:       logger.With().Str("component", "event_publisher").Logger(),
	}
}

// NodeID identifies events published by this process.
func (p *BrokerPublisher) NodeID() string {
	return p.nodeID
}

// RedisChannel is the pub/sub channel events are written to, empty when disabled.
func (p *BrokerPublisher) RedisChannel() string {
	if p.redis == nil {
		return ""
	}
	return p.redisChannel
}

// Publish never fails the caller; broker errors are logged.
func (p *BrokerPublisher) Publish(ctx context.Context, event HomeworkEvent) {
	event.Source = p.nodeID
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to encode event")
		return
	}

	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			p.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to publish event to redis")
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			p.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to publish event to nats")
		}
	}
}
