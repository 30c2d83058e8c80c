package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/studio-homework-api/internal/dto"
	"github.com/noah-isme/studio-homework-api/internal/models"
	"github.com/noah-isme/studio-homework-api/internal/observability"
)

const ingestQueueGroup = "studio-ingest"

const inboundEventSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"enum": ["trigger", "click", "conversion", "progress"]},
    "flow_id": {"type": "integer", "minimum": 1},
    "text": {"type": "string", "maxLength": 4000},
    "tracking_code": {"type": "string", "minLength": 1, "maxLength": 32},
    "submission_id": {"type": "integer", "minimum": 1},
    "metric": {"type": "string", "minLength": 1, "maxLength": 64},
    "delta": {"type": "integer", "maximum": 1000000}
  },
  "allOf": [
    {"if": {"properties": {"type": {"const": "trigger"}}}, "then": {"required": ["flow_id"]}},
    {"if": {"properties": {"type": {"enum": ["click", "conversion"]}}}, "then": {"required": ["tracking_code"]}},
    {"if": {"properties": {"type": {"const": "progress"}}}, "then": {"required": ["submission_id", "metric", "delta"]}}
  ]
}`

// IngestionConsumer applies social and booking events delivered over NATS.
type IngestionConsumer interface {
	Handle(ctx context.Context, payload []byte) error
	Start(ctx context.Context) error
}

type ingestionConsumer struct {
	nats     *nats.Conn
	subject  string
	schema   *jsonschema.Schema
	flows    FlowRegistry
	ledger   AttributionLedger
	homework HomeworkService
	logger   zerolog.Logger
}

// NewIngestionConsumer subscribes to "<base>.ingest". natsConn may be nil, in
// which case Start is a no-op and Handle can still be driven directly.
func NewIngestionConsumer(natsConn *nats.Conn, channelBase string, flows FlowRegistry, ledger AttributionLedger, homework HomeworkService, logger zerolog.Logger) IngestionConsumer {
	subject := ""
	if channelBase != "" {
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".ingest"
	}

	return &ingestionConsumer{
		nats:     natsConn,
		subject:  subject,
		schema:   jsonschema.MustCompileString("inbound_event.json", inboundEventSchema),
		flows:    flows,
		ledger:   ledger,
		homework: homework,
		logger:   logger.With().Str("component", "ingestion").Logger(),
	}
}

func (c *ingestionConsumer) Start(ctx context.Context) error {
	if c.nats == nil || c.subject == "" {
		return nil
	}

	sub, err := c.nats.QueueSubscribe(c.subject, ingestQueueGroup, func(msg *nats.Msg) {
		if err := c.Handle(ctx, msg.Data); err != nil {
			c.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("failed to apply ingested event")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.subject, err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to drain ingestion subscription")
		}
	}()

	c.logger.Info().Str("subject", c.subject).Str("queue", ingestQueueGroup).Msg("ingestion consumer started")
	return nil
}

// Handle validates one payload and dispatches it. Unknown tracking codes are
// counted as misses, not failures.
func (c *ingestionConsumer) Handle(ctx context.Context, payload []byte) error {
	var document interface{}
	if err := json.Unmarshal(payload, &document); err != nil {
		observability.IngestedEvents().WithLabelValues("invalid", "rejected").Inc()
		return fmt.Errorf("invalid event payload: %w", err)
	}
	if err := c.schema.Validate(document); err != nil {
		observability.IngestedEvents().WithLabelValues("invalid", "rejected").Inc()
		return fmt.Errorf("event payload does not match schema: %w", err)
	}

	var event dto.InboundEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		observability.IngestedEvents().WithLabelValues("invalid", "rejected").Inc()
		return fmt.Errorf("invalid event payload: %w", err)
	}

	err := c.dispatch(ctx, event)
	switch {
	case err == nil:
		observability.IngestedEvents().WithLabelValues(event.Type, "applied").Inc()
	case errors.Is(err, ErrUnknownTrackingCode):
		observability.IngestedEvents().WithLabelValues(event.Type, "unattributed").Inc()
		return nil
	default:
		observability.IngestedEvents().WithLabelValues(event.Type, "failed").Inc()
	}

	return err
}

func (c *ingestionConsumer) dispatch(ctx context.Context, event dto.InboundEvent) error {
	switch event.Type {
	case "trigger":
		_, err := c.flows.HandleInbound(ctx, event.FlowID, event.Text)
		return err
	case "click":
		_, err := c.ledger.RecordEvent(ctx, event.TrackingCode, models.AttributionClick)
		return err
	case "conversion":
		_, err := c.ledger.RecordEvent(ctx, event.TrackingCode, models.AttributionConversion)
		return err
	case "progress":
		_, err := c.homework.RecordProgress(ctx, event.SubmissionID, event.Metric, event.Delta)
		return err
	default:
		return fmt.Errorf("unsupported event type %q", event.Type)
	}
}
