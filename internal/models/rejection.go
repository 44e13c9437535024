package models

import "time"

// Rejection records that a responder declined a request. The composite key
// makes a second rejection of the same pair a no-op. Rows are never mutated
// or deleted; this table is the authoritative exclusion record.
type Rejection struct {
	RequestID   string    `gorm:"primaryKey;size:36" json:"request_id"`
	ResponderID uint      `gorm:"primaryKey" json:"responder_id"`
	Reason      string    `gorm:"size:512" json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Rejection) TableName() string { return "rejections" }
