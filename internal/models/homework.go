package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// TrainingModule is a curriculum unit owned by curriculum authoring.
type TrainingModule struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Sequence    int        `gorm:"index" json:"sequence"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Homeworks   []Homework `gorm:"foreignKey:ModuleID" json:"homeworks,omitempty"`
}

// Requirement is a quantified task a submission must satisfy.
type Requirement struct {
	Task     string `json:"task"`
	Quantity int    `json:"quantity"`
	Metric   string `json:"metric"`
}

// Instruction lists the ordered steps for one task.
type Instruction struct {
	Task  string   `json:"task"`
	Steps []string `json:"steps"`
}

// Homework is a quantified task template tied to a training module.
type Homework struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	ModuleID     uint           `gorm:"not null;index" json:"module_id"`
	Title        string         `gorm:"size:255;not null" json:"title"`
	Description  string         `gorm:"type:text" json:"description"`
	Requirements datatypes.JSON `gorm:"type:json" json:"requirements"`
	Instructions datatypes.JSON `gorm:"type:json" json:"instructions"`
	Points       int            `gorm:"not null;default:0" json:"points"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Module       TrainingModule `gorm:"foreignKey:ModuleID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"module"`
}

// SetRequirements serializes the requirement list into the JSON storage column.
func (h *Homework) SetRequirements(requirements []Requirement) {
	h.Requirements = encodeJSONList(requirements)
}

// RequirementList deserializes the stored requirements.
func (h Homework) RequirementList() []Requirement {
	var requirements []Requirement
	if !decodeJSONList(h.Requirements, &requirements) {
		return nil
	}
	return requirements
}

// SetInstructions serializes the instruction list into the JSON storage column.
func (h *Homework) SetInstructions(instructions []Instruction) {
	h.Instructions = encodeJSONList(instructions)
}

// InstructionList deserializes the stored instructions.
func (h Homework) InstructionList() []Instruction {
	var instructions []Instruction
	if !decodeJSONList(h.Instructions, &instructions) {
		return nil
	}
	return instructions
}

// TracksMetric reports whether any requirement is measured by the metric.
func (h Homework) TracksMetric(metric string) bool {
	for _, requirement := range h.RequirementList() {
		if requirement.Metric == metric {
			return true
		}
	}
	return false
}

func encodeJSONList(value interface{}) datatypes.JSON {
	data, err := json.Marshal(value)
	if err != nil || string(data) == "null" {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(data)
}

func decodeJSONList(raw datatypes.JSON, target interface{}) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, target) == nil
}
