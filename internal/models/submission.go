package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubmissionStatus is the lifecycle state of a homework submission.
type SubmissionStatus string

const (
	// SubmissionStatusActive marks the teacher's in-progress homework.
	SubmissionStatusActive SubmissionStatus = "active"
	// SubmissionStatusCompleted is terminal: every requirement was met.
	SubmissionStatusCompleted SubmissionStatus = "completed"
	// SubmissionStatusCancelled is terminal: the teacher gave up on the attempt.
	SubmissionStatusCancelled SubmissionStatus = "cancelled"
)

const (
	// MaxProgressDelta bounds a single progress report.
	MaxProgressDelta int64 = 1_000_000
	// MaxProgressTotal bounds the running total of one metric.
	MaxProgressTotal int64 = 1 << 40
)

// HomeworkSubmission is one teacher's attempt at a homework.
//
// ActiveTeacherID mirrors TeacherID while the submission is active and is
// NULL otherwise; its unique index allows a single active submission per teacher.
type HomeworkSubmission struct {
	ID              uint                 `gorm:"primaryKey" json:"id"`
	TeacherID       uint                 `gorm:"not null;index" json:"teacher_id"`
	HomeworkID      uint                 `gorm:"not null;index" json:"homework_id"`
	Status          SubmissionStatus     `gorm:"size:16;not null;index" json:"status"`
	ActiveTeacherID *uint                `gorm:"uniqueIndex:idx_homework_submissions_active_teacher" json:"-"`
	TrackingCode    string               `gorm:"size:32;not null;uniqueIndex" json:"tracking_code"`
	TrackingURL     string               `gorm:"column:tracking_url;size:512;not null" json:"tracking_url"`
	AttachedFlowID  *uint                `gorm:"index" json:"attached_flow_id"`
	SubmissionURLs  datatypes.JSON       `gorm:"column:submission_urls;type:json" json:"submission_urls"`
	ClickCount      int64                `gorm:"not null;default:0" json:"click_count"`
	ConversionCount int64                `gorm:"not null;default:0" json:"conversion_count"`
	SupersedesID    *uint                `gorm:"index" json:"supersedes_id"`
	StartedAt       time.Time            `gorm:"not null" json:"started_at"`
	CompletedAt     *time.Time           `json:"completed_at"`
	CancelledAt     *time.Time           `json:"cancelled_at"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	Homework        Homework             `gorm:"foreignKey:HomeworkID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"homework"`
	Progress        []SubmissionProgress `gorm:"foreignKey:SubmissionID" json:"progress"`
}

// SubmissionProgress holds the running count for one metric of a submission.
type SubmissionProgress struct {
	SubmissionID uint      `gorm:"primaryKey;autoIncrement:false" json:"submission_id"`
	Metric       string    `gorm:"primaryKey;size:64" json:"metric"`
	Total        int64     `gorm:"not null;default:0" json:"total"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName pins the progress table name.
func (SubmissionProgress) TableName() string {
	return "submission_progress"
}

// IsActive reports whether the submission still accepts changes.
func (s HomeworkSubmission) IsActive() bool {
	return s.Status == SubmissionStatusActive
}

// IsCompleted reports whether every requirement was satisfied.
func (s HomeworkSubmission) IsCompleted() bool {
	return s.Status == SubmissionStatusCompleted
}

// ProgressMap flattens the loaded progress rows. Absent metrics are zero.
func (s HomeworkSubmission) ProgressMap() map[string]int64 {
	progress := make(map[string]int64, len(s.Progress))
	for _, row := range s.Progress {
		progress[row.Metric] += row.Total
	}
	return progress
}

// SetEvidence stores the ordered evidence links.
func (s *HomeworkSubmission) SetEvidence(urls []string) {
	if urls == nil {
		urls = []string{}
	}
	s.SubmissionURLs = encodeJSONList(urls)
}

// EvidenceList returns the stored evidence links.
func (s HomeworkSubmission) EvidenceList() []string {
	var urls []string
	if !decodeJSONList(s.SubmissionURLs, &urls) {
		return []string{}
	}
	return urls
}

// PercentComplete returns min(100, 100*progress/quantity) for a requirement.
func PercentComplete(requirement Requirement, progress map[string]int64) int {
	if requirement.Quantity <= 0 {
		return 100
	}
	current := progress[requirement.Metric]
	if current <= 0 {
		return 0
	}
	if current >= int64(requirement.Quantity) {
		return 100
	}
	percent := current * 100 / int64(requirement.Quantity)
	if percent > 100 {
		return 100
	}
	return int(percent)
}

// RequirementsMet reports whether progress reaches every requirement quantity.
func RequirementsMet(requirements []Requirement, progress map[string]int64) bool {
	for _, requirement := range requirements {
		if progress[requirement.Metric] < int64(requirement.Quantity) {
			return false
		}
	}
	return true
}
