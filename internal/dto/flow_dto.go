package dto

import (
	"time"

	"github.com/noah-isme/studio-homework-api/internal/models"
)

// FlowCreateRequest registers an automation flow for the calling teacher.
type FlowCreateRequest struct {
	SocialAccountID string   `json:"social_account_id" validate:"required,max=128"`
	Name            string   `json:"name" validate:"required,min=2,max=255"`
	TriggerType     string   `json:"trigger_type" validate:"required,oneof=comment_keyword story_reply story_reaction dm_keyword ad_click"`
	Keywords        []string `json:"keywords" validate:"omitempty,max=50,dive,max=64"`
	ResponseMessage string   `json:"response_message" validate:"max=2000"`
}

// FlowUpdateRequest toggles a flow.
type FlowUpdateRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// FlowTriggerRequest carries the inbound text of a social event, if any.
type FlowTriggerRequest struct {
	Text string `json:"text" validate:"max=4000"`
}

// FlowResponse is returned to API clients when viewing flows.
type FlowResponse struct {
	ID              uint      `json:"id"`
	TeacherID       uint      `json:"teacher_id"`
	SocialAccountID string    `json:"social_account_id"`
	Name            string    `json:"name"`
	TriggerType     string    `json:"trigger_type"`
	Keywords        []string  `json:"keywords"`
	ResponseMessage string    `json:"response_message"`
	TotalTriggered  int64     `json:"total_triggered"`
	TotalBooked     int64     `json:"total_booked"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// FlowTriggerResponse reports whether an inbound trigger was counted.
type FlowTriggerResponse struct {
	FlowID   uint `json:"flow_id"`
	Recorded bool `json:"recorded"`
}

// NewFlowResponse converts a flow model into a DTO.
func NewFlowResponse(model models.AutomationFlow) FlowResponse {
	return FlowResponse{
		ID:              model.ID,
		TeacherID:       model.TeacherID,
		SocialAccountID: model.SocialAccountID,
		Name:            model.Name,
		TriggerType:     string(model.TriggerType),
		Keywords:        model.KeywordList(),
		ResponseMessage: model.ResponseMessage,
		TotalTriggered:  model.TotalTriggered,
		TotalBooked:     model.TotalBooked,
		IsActive:        model.IsActive,
		CreatedAt:       model.CreatedAt,
	}
}

// NewFlowResponseSlice converts flow models into DTOs.
func NewFlowResponseSlice(models []models.AutomationFlow) []FlowResponse {
	responses := make([]FlowResponse, 0, len(models))
	for _, flow := range models {
		responses = append(responses, NewFlowResponse(flow))
	}

	return responses
}
