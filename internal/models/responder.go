package models

import "time"

// Responder is a volunteer in the directory. Verification is owned by the
// external admin workflow; availability and location are self-reported.
// Only verified and available responders are matchable.
type Responder struct {
	UserID     uint      `gorm:"primaryKey" json:"user_id"`
	Name       string    `gorm:"size:128" json:"name"`
	Email      string    `gorm:"size:256" json:"email,omitempty"`
	Skills     string    `gorm:"size:512" json:"skills"` // comma separated tags
	Verified   bool      `gorm:"index" json:"verified"`
	Available  bool      `gorm:"index" json:"available"`
	Rating     float64   `json:"rating"` // rolling average, 0 when unrated
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	LocationAt time.Time `json:"location_at"` // timestamp of the last location ping
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Responder) TableName() string { return "responders" }

// Matchable reports whether the responder may be offered requests.
func (r *Responder) Matchable() bool {
	return r.Verified && r.Available
}
