package dto

// ProgressRequest reports progress for one metric of a submission.
type ProgressRequest struct {
	Metric string `json:"metric" validate:"required,max=64"`
	Delta  int64  `json:"delta" validate:"gte=0,lte=1000000"`
}

// TrackingStatsResponse exposes the aggregate counts of a tracking code.
type TrackingStatsResponse struct {
	TrackingCode string `json:"tracking_code"`
	SubmissionID uint   `json:"submission_id"`
	TeacherID    uint   `json:"teacher_id"`
	Clicks       int64  `json:"clicks"`
	Conversions  int64  `json:"conversions"`
}

// ReconcileReport compares running counters with the event log.
type ReconcileReport struct {
	TrackingCode       string `json:"tracking_code"`
	CounterClicks      int64  `json:"counter_clicks"`
	CounterConversions int64  `json:"counter_conversions"`
	EventClicks        int64  `json:"event_clicks"`
	EventConversions   int64  `json:"event_conversions"`
	Consistent         bool   `json:"consistent"`
}

// AttributionResult describes how an inbound click or conversion was recorded.
type AttributionResult struct {
	TrackingCode string `json:"tracking_code"`
	Kind         string `json:"kind"`
	Attributed   bool   `json:"attributed"`
	SubmissionID uint   `json:"submission_id,omitempty"`
	FlowID       *uint  `json:"flow_id,omitempty"`
}

// InboundEvent is the message shape consumed from the ingestion subject.
type InboundEvent struct {
	Type         string `json:"type"`
	FlowID       uint   `json:"flow_id,omitempty"`
	Text         string `json:"text,omitempty"`
	TrackingCode string `json:"tracking_code,omitempty"`
	SubmissionID uint   `json:"submission_id,omitempty"`
	Metric       string `json:"metric,omitempty"`
	Delta        int64  `json:"delta,omitempty"`
}
