package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// TriggerType enumerates the social events an automation flow reacts to.
type TriggerType string

const (
	TriggerCommentKeyword TriggerType = "comment_keyword"
	TriggerStoryReply     TriggerType = "story_reply"
	TriggerStoryReaction  TriggerType = "story_reaction"
	TriggerDMKeyword      TriggerType = "dm_keyword"
	TriggerAdClick        TriggerType = "ad_click"
)

// TriggerTypes lists every supported trigger type.
var TriggerTypes = []TriggerType{
	TriggerCommentKeyword,
	TriggerStoryReply,
	TriggerStoryReaction,
	TriggerDMKeyword,
	TriggerAdClick,
}

// ParseTriggerType converts a raw value into a known trigger type.
func ParseTriggerType(raw string) (TriggerType, bool) {
	candidate := TriggerType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range TriggerTypes {
		if candidate == known {
			return known, true
		}
	}
	return "", false
}

// RequiresKeywords reports whether the trigger only fires on keyword matches.
func (t TriggerType) RequiresKeywords() bool {
	switch t {
	case TriggerCommentKeyword, TriggerDMKeyword:
		return true
	case TriggerStoryReply, TriggerStoryReaction, TriggerAdClick:
		return false
	default:
		return false
	}
}

// AutomationFlow is a social auto-reply automation owned by a teacher's account.
type AutomationFlow struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	TeacherID       uint           `gorm:"not null;index" json:"teacher_id"`
	SocialAccountID string         `gorm:"size:128;not null;index" json:"social_account_id"`
	Name            string         `gorm:"size:255;not null" json:"name"`
	TriggerType     TriggerType    `gorm:"size:32;not null" json:"trigger_type"`
	Keywords        datatypes.JSON `gorm:"type:json" json:"keywords"`
	ResponseMessage string         `gorm:"type:text" json:"response_message"`
	TotalTriggered  int64          `gorm:"not null;default:0" json:"total_triggered"`
	TotalBooked     int64          `gorm:"not null;default:0" json:"total_booked"`
	IsActive        bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// SetKeywords normalises and stores the trigger keywords.
func (f *AutomationFlow) SetKeywords(keywords []string) {
	seen := make(map[string]struct{}, len(keywords))
	normalised := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		value := strings.ToLower(strings.TrimSpace(keyword))
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		normalised = append(normalised, value)
	}
	f.Keywords = encodeJSONList(normalised)
}

// KeywordList returns the stored keywords.
func (f AutomationFlow) KeywordList() []string {
	var keywords []string
	if !decodeJSONList(f.Keywords, &keywords) {
		return []string{}
	}
	return keywords
}

// Matches reports whether an inbound event text fires this flow.
func (f AutomationFlow) Matches(text string) bool {
	if !f.IsActive {
		return false
	}

	keywords := f.KeywordList()
	switch f.TriggerType {
	case TriggerCommentKeyword, TriggerDMKeyword:
		return containsKeyword(keywords, text)
	case TriggerStoryReply, TriggerStoryReaction, TriggerAdClick:
		if len(keywords) == 0 {
			return true
		}
		return containsKeyword(keywords, text)
	default:
		return false
	}
}

func containsKeyword(keywords []string, text string) bool {
	haystack := strings.ToLower(text)
	for _, keyword := range keywords {
		if keyword != "" && strings.Contains(haystack, keyword) {
			return true
		}
	}
	return false
}
