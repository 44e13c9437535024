package dispatch

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"RescueNet/internal/models"
	apperrors "RescueNet/pkg/errors"
)

// Ledger is the authoritative record of (request, responder) rejections.
// Once a responder rejects a request they are never offered it again; the
// notified-candidate cache is only an optimization on top of this.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Record stores a rejection. Recording the same pair twice is a no-op, not
// an error.
func (l *Ledger) Record(ctx context.Context, requestID string, responderID uint, reason string) error {
	rejection := models.Rejection{
		RequestID:   requestID,
		ResponderID: responderID,
		Reason:      reason,
	}
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rejection).Error
	if err != nil {
		return apperrors.WrapCode(apperrors.CodeUnavailable, err, "record rejection")
	}
	return nil
}

// IsRejected reports whether the responder has declined the request.
func (l *Ledger) IsRejected(ctx context.Context, requestID string, responderID uint) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&models.Rejection{}).
		Where("request_id = ? AND responder_id = ?", requestID, responderID).
		Count(&count).Error
	if err != nil {
		return false, apperrors.WrapCode(apperrors.CodeUnavailable, err, "check rejection")
	}
	return count > 0, nil
}

// FilterRejected removes candidates that have declined the request.
func (l *Ledger) FilterRejected(ctx context.Context, requestID string, candidates []Candidate) ([]Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	ids := make([]uint, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.Responder.UserID)
	}

	var rejected []uint
	err := l.db.WithContext(ctx).
		Model(&models.Rejection{}).
		Where("request_id = ? AND responder_id IN ?", requestID, ids).
		Pluck("responder_id", &rejected).Error
	if err != nil {
		return nil, apperrors.WrapCode(apperrors.CodeUnavailable, err, "filter rejections")
	}
	if len(rejected) == 0 {
		return candidates, nil
	}

	rejectedSet := make(map[uint]bool, len(rejected))
	for _, id := range rejected {
		rejectedSet[id] = true
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if !rejectedSet[c.Responder.UserID] {
			kept = append(kept, c)
		}
	}
	return kept, nil
}
