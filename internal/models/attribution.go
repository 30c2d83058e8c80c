package models

import (
	"strings"
	"time"
)

// AttributionKind distinguishes clicks from conversions.
type AttributionKind string

const (
	AttributionClick      AttributionKind = "click"
	AttributionConversion AttributionKind = "conversion"
)

// ParseAttributionKind converts a raw value into a known kind.
func ParseAttributionKind(raw string) (AttributionKind, bool) {
	switch AttributionKind(strings.ToLower(strings.TrimSpace(raw))) {
	case AttributionClick:
		return AttributionClick, true
	case AttributionConversion:
		return AttributionConversion, true
	default:
		return "", false
	}
}

// AttributionEvent is an append-only click or conversion against a tracking code.
type AttributionEvent struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	TrackingCode string          `gorm:"size:32;not null;index" json:"tracking_code"`
	SubmissionID uint            `gorm:"not null;index" json:"submission_id"`
	FlowID       *uint           `gorm:"index" json:"flow_id"`
	Kind         AttributionKind `gorm:"size:16;not null" json:"kind"`
	OccurredAt   time.Time       `gorm:"not null" json:"occurred_at"`
	CreatedAt    time.Time       `json:"created_at"`
}
