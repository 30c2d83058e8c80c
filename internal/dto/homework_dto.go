package dto

import (
	"time"

	"github.com/noah-isme/studio-homework-api/internal/models"
)

// StartHomeworkRequest starts (or restarts) a homework for the calling teacher.
type StartHomeworkRequest struct {
	HomeworkID uint  `json:"homework_id" validate:"required,gt=0"`
	FlowID     *uint `json:"flow_id" validate:"omitempty,gt=0"`
}

// SaveEvidenceRequest replaces the evidence links of a submission.
type SaveEvidenceRequest struct {
	URLs []string `json:"urls" validate:"dive,max=2048"`
}

// AttachFlowRequest attaches a flow; a null flow_id detaches.
type AttachFlowRequest struct {
	FlowID *uint `json:"flow_id" validate:"omitempty,gt=0"`
}

// RequirementResponse describes one requirement of a homework.
type RequirementResponse struct {
	Task     string `json:"task"`
	Quantity int    `json:"quantity"`
	Metric   string `json:"metric"`
}

// InstructionResponse lists the ordered steps for a task.
type InstructionResponse struct {
	Task  string   `json:"task"`
	Steps []string `json:"steps"`
}

// HomeworkResponse is the catalog view of a homework.
type HomeworkResponse struct {
	ID           uint                  `json:"id"`
	ModuleID     uint                  `json:"module_id"`
	ModuleTitle  string                `json:"module_title,omitempty"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Requirements []RequirementResponse `json:"requirements"`
	Instructions []InstructionResponse `json:"instructions"`
	Points       int                   `json:"points"`
}

// ModuleResponse is a training module with its homeworks.
type ModuleResponse struct {
	ID          uint               `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Sequence    int                `json:"sequence"`
	Homeworks   []HomeworkResponse `json:"homeworks"`
}

// RequirementProgress reports progress against one requirement.
type RequirementProgress struct {
	Task    string `json:"task"`
	Metric  string `json:"metric"`
	Target  int    `json:"target"`
	Current int64  `json:"current"`
	Percent int    `json:"percent"`
}

// SubmissionResponse is returned to teachers viewing their submissions.
type SubmissionResponse struct {
	ID             uint                  `json:"id"`
	TeacherID      uint                  `json:"teacher_id"`
	HomeworkID     uint                  `json:"homework_id"`
	HomeworkTitle  string                `json:"homework_title"`
	Status         string                `json:"status"`
	IsCompleted    bool                  `json:"is_completed"`
	TrackingCode   string                `json:"tracking_code"`
	TrackingURL    string                `json:"tracking_url"`
	AttachedFlowID *uint                 `json:"attached_flow_id"`
	SubmissionURLs []string              `json:"submission_urls"`
	Requirements   []RequirementProgress `json:"requirements"`
	Clicks         int64                 `json:"clicks"`
	Conversions    int64                 `json:"conversions"`
	PointsEarned   int                   `json:"points_earned"`
	SupersedesID   *uint                 `json:"supersedes_id,omitempty"`
	StartedAt      time.Time             `json:"started_at"`
	CompletedAt    *time.Time            `json:"completed_at"`
	CancelledAt    *time.Time            `json:"cancelled_at"`
}

// TeacherSubmissionsResponse lists a teacher's submissions.
type TeacherSubmissionsResponse struct {
	ActiveHomeworkID   *uint                `json:"active_homework_id"`
	ActiveSubmissionID *uint                `json:"active_submission_id"`
	Submissions        []SubmissionResponse `json:"submissions"`
}

// NewHomeworkResponse converts a Homework model into a DTO.
func NewHomeworkResponse(model models.Homework) HomeworkResponse {
	response := HomeworkResponse{
		ID:           model.ID,
		ModuleID:     model.ModuleID,
		ModuleTitle:  model.Module.Title,
		Title:        model.Title,
		Description:  model.Description,
		Requirements: make([]RequirementResponse, 0),
		Instructions: make([]InstructionResponse, 0),
		Points:       model.Points,
	}

	for _, requirement := range model.RequirementList() {
		response.Requirements = append(response.Requirements, RequirementResponse{
			Task:     requirement.Task,
			Quantity: requirement.Quantity,
			Metric:   requirement.Metric,
		})
	}

	for _, instruction := range model.InstructionList() {
		response.Instructions = append(response.Instructions, InstructionResponse{
			Task:  instruction.Task,
			Steps: instruction.Steps,
		})
	}

	return response
}

// NewModuleResponseSlice converts training modules into DTOs.
func NewModuleResponseSlice(modules []models.TrainingModule) []ModuleResponse {
	responses := make([]ModuleResponse, 0, len(modules))
	for _, module := range modules {
		homeworks := make([]HomeworkResponse, 0, len(module.Homeworks))
		for _, homework := range module.Homeworks {
			item := NewHomeworkResponse(homework)
			item.ModuleTitle = module.Title
			homeworks = append(homeworks, item)
		}

		responses = append(responses, ModuleResponse{
			ID:          module.ID,
			Title:       module.Title,
			Description: module.Description,
			Sequence:    module.Sequence,
			Homeworks:   homeworks,
		})
	}

	return responses
}

// NewSubmissionResponse converts a submission and its homework into a DTO.
func NewSubmissionResponse(model models.HomeworkSubmission, homework models.Homework) SubmissionResponse {
	progress := model.ProgressMap()
	requirements := homework.RequirementList()

	response := SubmissionResponse{
		ID:             model.ID,
		TeacherID:      model.TeacherID,
		HomeworkID:     model.HomeworkID,
		HomeworkTitle:  homework.Title,
		Status:         string(model.Status),
		IsCompleted:    model.IsCompleted(),
		TrackingCode:   model.TrackingCode,
		TrackingURL:    model.TrackingURL,
		AttachedFlowID: model.AttachedFlowID,
		SubmissionURLs: model.EvidenceList(),
		Requirements:   make([]RequirementProgress, 0, len(requirements)),
		Clicks:         model.ClickCount,
		Conversions:    model.ConversionCount,
		SupersedesID:   model.SupersedesID,
		StartedAt:      model.StartedAt,
		CompletedAt:    model.CompletedAt,
		CancelledAt:    model.CancelledAt,
	}

	for _, requirement := range requirements {
		response.Requirements = append(response.Requirements, RequirementProgress{
			Task:    requirement.Task,
			Metric:  requirement.Metric,
			Target:  requirement.Quantity,
			Current: progress[requirement.Metric],
			Percent: models.PercentComplete(requirement, progress),
		})
	}

	if model.IsCompleted() {
		response.PointsEarned = homework.Points
	}

	return response
}
