package models

import "time"

// RequestStatus is the lifecycle state of an emergency request. Transitions
// are monotonic: terminal states are never left.
type RequestStatus string

const (
	StatusPending    RequestStatus = "PENDING"
	StatusAccepted   RequestStatus = "ACCEPTED"
	StatusInProgress RequestStatus = "IN_PROGRESS"
	StatusResolved   RequestStatus = "RESOLVED"
	StatusExpired    RequestStatus = "EXPIRED"
	StatusCancelled  RequestStatus = "CANCELLED"
)

// Priority is derived from the category at creation and never changes.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Category is the reported emergency type.
type Category string

const (
	CategoryFire            Category = "FIRE"
	CategoryMedical         Category = "MEDICAL"
	CategoryNaturalDisaster Category = "NATURAL_DISASTER"
	CategoryAccident        Category = "ACCIDENT"
	CategoryCrime           Category = "CRIME"
	CategoryProperty        Category = "PROPERTY"
	CategoryOther           Category = "OTHER"
)

// EmergencyRequest is the authoritative record of one dispatch. Rows are
// never deleted; terminal states retain them for history.
type EmergencyRequest struct {
	ID          string        `gorm:"primaryKey;size:36" json:"id"`
	RequesterID uint          `gorm:"index;not null" json:"requester_id"`
	Category    Category      `gorm:"size:32;not null" json:"category"`
	Priority    Priority      `gorm:"size:16;not null" json:"priority"`
	Description string        `gorm:"size:2048" json:"description"`
	ProofRef    string        `gorm:"size:512" json:"proof_ref,omitempty"` // opaque reference into external image storage
	Latitude    float64       `json:"latitude"`
	Longitude   float64       `json:"longitude"`
	Status      RequestStatus `gorm:"size:16;index;not null" json:"status"`
	AcceptedBy  *uint         `gorm:"index" json:"accepted_by,omitempty"`
	AcceptedAt  *time.Time    `json:"accepted_at,omitempty"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
	ExpiredAt   *time.Time    `json:"expired_at,omitempty"`
	Deadline    time.Time     `gorm:"index;not null" json:"deadline"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (EmergencyRequest) TableName() string { return "emergency_requests" }

var legalTransitions = map[RequestStatus][]RequestStatus{
	StatusPending:    {StatusAccepted, StatusExpired, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusResolved, StatusCancelled},
	StatusInProgress: {StatusResolved, StatusCancelled},
}

// CanTransition reports whether from → to is a legal state machine edge.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status can never be left.
func (s RequestStatus) Terminal() bool {
	return s == StatusResolved || s == StatusExpired || s == StatusCancelled
}

// Valid reports whether the status is a known state.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusInProgress, StatusResolved, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether the category is a known emergency type.
func (c Category) Valid() bool {
	switch c {
	case CategoryFire, CategoryMedical, CategoryNaturalDisaster,
		CategoryAccident, CategoryCrime, CategoryProperty, CategoryOther:
		return true
	}
	return false
}

// PriorityFor maps a category to its fixed priority. Life-threatening
// categories dispatch as CRITICAL.
func PriorityFor(c Category) Priority {
	switch c {
	case CategoryFire, CategoryMedical, CategoryNaturalDisaster:
		return PriorityCritical
	case CategoryAccident, CategoryCrime:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}
