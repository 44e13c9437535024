package models

import "time"

// Feedback is the requester's rating of the responder after resolution.
// One row per request; resubmission overwrites.
type Feedback struct {
	RequestID   string    `gorm:"primaryKey;size:36" json:"request_id"`
	RequesterID uint      `gorm:"not null" json:"requester_id"`
	ResponderID uint      `gorm:"index;not null" json:"responder_id"`
	Rating      int       `gorm:"not null" json:"rating"` // 1..5
	Comment     string    `gorm:"size:1024" json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Feedback) TableName() string { return "feedbacks" }
