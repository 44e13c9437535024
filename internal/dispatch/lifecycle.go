package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"RescueNet/internal/models"
	apperrors "RescueNet/pkg/errors"
	"RescueNet/pkg/logger"
	"RescueNet/pkg/metrics"
)

// Service owns the request lifecycle state machine. All mutating operations
// go through here; matching and notification are side effects that never
// gate or roll back a lifecycle write.
type Service struct {
	db             *gorm.DB
	matcher        *Matcher
	ledger         *Ledger
	notifier       *Notifier
	deadlineWindow time.Duration
}

func NewService(db *gorm.DB, matcher *Matcher, ledger *Ledger, notifier *Notifier, deadlineWindow time.Duration) *Service {
	if deadlineWindow <= 0 {
		deadlineWindow = 2 * time.Minute
	}
	return &Service{
		db:             db,
		matcher:        matcher,
		ledger:         ledger,
		notifier:       notifier,
		deadlineWindow: deadlineWindow,
	}
}

// CreateInput carries a new emergency report.
type CreateInput struct {
	RequesterID uint
	Category    models.Category
	Latitude    float64
	Longitude   float64
	Description string
	ProofRef    string
}

// Create validates and inserts a PENDING request, then triggers matching and
// candidate notification on a detached goroutine. The caller's response never
// waits on, or fails because of, the dispatch side effects.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.EmergencyRequest, error) {
	if !in.Category.Valid() {
		return nil, apperrors.WithCodef(apperrors.CodeInvalid, "unknown category %q", in.Category)
	}
	if err := validateCoords(in.Latitude, in.Longitude); err != nil {
		return nil, err
	}

	now := time.Now()
	req := &models.EmergencyRequest{
		ID:          uuid.New().String(),
		RequesterID: in.RequesterID,
		Category:    in.Category,
		Priority:    models.PriorityFor(in.Category),
		Description: in.Description,
		ProofRef:    in.ProofRef,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Status:      models.StatusPending,
		Deadline:    now.Add(s.deadlineWindow),
	}
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, apperrors.WrapCode(apperrors.CodeUnavailable, err, "create request")
	}
	metrics.RequestsCreated.WithLabelValues(string(req.Priority)).Inc()

	s.dispatchAsync(*req)
	return req, nil
}

// dispatchAsync runs match → filter → notify after the insert has committed.
func (s *Service) dispatchAsync(req models.EmergencyRequest) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("dispatch panicked",
					zap.String("request_id", req.ID), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		candidates, err := s.matcher.FindCandidates(ctx, &req)
		if err != nil {
			logger.Error("matching failed",
				zap.String("request_id", req.ID), zap.String("stage", "match"), zap.Error(err))
			return
		}
		if len(candidates) == 0 {
			logger.Info("no candidates in range", zap.String("request_id", req.ID))
			return
		}
		s.notifier.NotifyCandidates(ctx, &req, candidates)
	}()
}

// Accept assigns the request to the responder. Exactly one of any set of
// concurrent accepts can win: the write is a compare-and-swap on status,
// executed under a row lock where the engine provides one. Losing the race
// surfaces as Conflict so clients can show "someone else already responded".
func (s *Service) Accept(ctx context.Context, requestID string, responderID uint) (*models.EmergencyRequest, error) {
	var accepted models.EmergencyRequest

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() != "sqlite" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var req models.EmergencyRequest
		if err := q.First(&req, "id = ?", requestID).Error; err != nil {
			if apperrors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.WithCode(apperrors.CodeNotFound, "request not found")
			}
			return apperrors.WrapCode(apperrors.CodeUnavailable, err, "load request")
		}
		if req.Status != models.StatusPending {
			return apperrors.WithCode(apperrors.CodeConflict, "request no longer available")
		}

		var responder models.Responder
		if err := tx.First(&responder, "user_id = ?", responderID).Error; err != nil {
			if apperrors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.WithCode(apperrors.CodeNotFound, "responder not found")
			}
			return apperrors.WrapCode(apperrors.CodeUnavailable, err, "load responder")
		}
		if !responder.Matchable() {
			return apperrors.WithCode(apperrors.CodeForbidden, "responder is not verified and available")
		}

		now := time.Now()
		res := tx.Model(&models.EmergencyRequest{}).
			Where("id = ? AND status = ?", requestID, models.StatusPending).
			Updates(map[string]interface{}{
				"status":      models.StatusAccepted,
				"accepted_by": responderID,
				"accepted_at": now,
			})
		if res.Error != nil {
			return apperrors.WrapCode(apperrors.CodeUnavailable, res.Error, "accept request")
		}
		if res.RowsAffected == 0 {
			return apperrors.WithCode(apperrors.CodeConflict, "request no longer available")
		}

		req.Status = models.StatusAccepted
		req.AcceptedBy = &responderID
		req.AcceptedAt = &now
		accepted = req
		return nil
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeConflict) {
			metrics.AcceptConflicts.Inc()
		}
		return nil, err
	}

	metrics.RequestsAccepted.Inc()
	s.notifyAsync(accepted.ID, func(ctx context.Context) {
		s.notifier.NotifyAccepted(ctx, &accepted)
	})
	return &accepted, nil
}

// Reject records the responder's refusal. Always idempotent and independent
// of the request's current status: a stale offer must be dismissible.
func (s *Service) Reject(ctx context.Context, requestID string, responderID uint, reason string) error {
	return s.ledger.Record(ctx, requestID, responderID, reason)
}

// UpdateStatus moves the request along the state machine. Only the requester
// or the assigned responder may act; ACCEPTED and EXPIRED are not reachable
// through this operation.
func (s *Service) UpdateStatus(ctx context.Context, requestID string, actorID uint, newStatus models.RequestStatus) (*models.EmergencyRequest, error) {
	switch newStatus {
	case models.StatusInProgress, models.StatusResolved, models.StatusCancelled:
	default:
		return nil, apperrors.WithCodef(apperrors.CodeInvalid, "status %q cannot be set directly", newStatus)
	}

	var updated models.EmergencyRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.EmergencyRequest
		if err := tx.First(&req, "id = ?", requestID).Error; err != nil {
			if apperrors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.WithCode(apperrors.CodeNotFound, "request not found")
			}
			return apperrors.WrapCode(apperrors.CodeUnavailable, err, "load request")
		}

		isRequester := actorID == req.RequesterID
		isAssigned := req.AcceptedBy != nil && *req.AcceptedBy == actorID
		if !isRequester && !isAssigned {
			return apperrors.WithCode(apperrors.CodeForbidden, "actor is neither requester nor assigned responder")
		}
		if !models.CanTransition(req.Status, newStatus) {
			return apperrors.WithCodef(apperrors.CodeConflict, "cannot transition %s to %s", req.Status, newStatus)
		}

		fields := map[string]interface{}{"status": newStatus}
		now := time.Now()
		if newStatus == models.StatusResolved {
			fields["resolved_at"] = now
		}
		res := tx.Model(&models.EmergencyRequest{}).
			Where("id = ? AND status = ?", requestID, req.Status).
			Updates(fields)
		if res.Error != nil {
			return apperrors.WrapCode(apperrors.CodeUnavailable, res.Error, "update status")
		}
		if res.RowsAffected == 0 {
			return apperrors.WithCode(apperrors.CodeConflict, "request state changed concurrently")
		}

		req.Status = newStatus
		if newStatus == models.StatusResolved {
			req.ResolvedAt = &now
		}
		req.UpdatedAt = now
		updated = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyAsync(updated.ID, func(ctx context.Context) {
		s.notifier.NotifyStatusChanged(ctx, &updated)
	})
	return &updated, nil
}

// AddFeedback records the requester's rating once the request is resolved.
// Resubmission overwrites the previous feedback for the request, and the
// responder's rolling average is recomputed from all their feedback.
func (s *Service) AddFeedback(ctx context.Context, requestID string, requesterID uint, rating int, comment string) (*models.Feedback, error) {
	if rating < 1 || rating > 5 {
		return nil, apperrors.WithCode(apperrors.CodeInvalid, "rating must be between 1 and 5")
	}

	var fb models.Feedback
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.EmergencyRequest
		if err := tx.First(&req, "id = ?", requestID).Error; err != nil {
			if apperrors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.WithCode(apperrors.CodeNotFound, "request not found")
			}
			return apperrors.WrapCode(apperrors.CodeUnavailable, err, "load request")
		}
		if req.RequesterID != requesterID {
			return apperrors.WithCode(apperrors.CodeForbidden, "only the requester may leave feedback")
		}
		if req.Status != models.StatusResolved {
			return apperrors.WithCode(apperrors.CodeConflict, "request is not resolved")
		}
		if req.AcceptedBy == nil {
			return apperrors.WithCode(apperrors.CodeConflict, "no responder was assigned")
		}

		fb = models.Feedback{
			RequestID:   requestID,
			RequesterID: requesterID,
			ResponderID: *req.AcceptedBy,
			Rating:      rating,
			Comment:     comment,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}},
			UpdateAll: true,
		}).Create(&fb).Error; err != nil {
			return apperrors.WrapCode(apperrors.CodeUnavailable, err, "save feedback")
		}

		// refresh the responder's rolling average
		var avg float64
		if err := tx.Model(&models.Feedback{}).
			Where("responder_id = ?", *req.AcceptedBy).
			Select("AVG(rating)").Scan(&avg).Error; err != nil {
			return apperrors.WrapCode(apperrors.CodeUnavailable, err, "recompute rating")
		}
		if err := tx.Model(&models.Responder{}).
			Where("user_id = ?", *req.AcceptedBy).
			Update("rating", avg).Error; err != nil {
			return apperrors.WrapCode(apperrors.CodeUnavailable, err, "update responder rating")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fb, nil
}

// Details is the read-only projection served to clients.
type Details struct {
	Request   models.EmergencyRequest `json:"request"`
	Responder *ResponderInfo          `json:"responder,omitempty"`
}

// ResponderInfo exposes the assigned responder including live location when
// they are still sharing it.
type ResponderInfo struct {
	UserID     uint       `json:"user_id"`
	Name       string     `json:"name"`
	Rating     float64    `json:"rating"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	LocationAt *time.Time `json:"location_at,omitempty"`
}

// GetDetails loads the request and, when assigned, the responder's profile
// and live location. Not concurrency sensitive.
func (s *Service) GetDetails(ctx context.Context, requestID string) (*Details, error) {
	var req models.EmergencyRequest
	if err := s.db.WithContext(ctx).First(&req, "id = ?", requestID).Error; err != nil {
		if apperrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WithCode(apperrors.CodeNotFound, "request not found")
		}
		return nil, apperrors.WrapCode(apperrors.CodeUnavailable, err, "load request")
	}

	details := &Details{Request: req}
	if req.AcceptedBy != nil {
		var responder models.Responder
		if err := s.db.WithContext(ctx).First(&responder, "user_id = ?", *req.AcceptedBy).Error; err == nil {
			info := &ResponderInfo{
				UserID: responder.UserID,
				Name:   responder.Name,
				Rating: responder.Rating,
			}
			if responder.Available {
				info.Latitude = &responder.Latitude
				info.Longitude = &responder.Longitude
				info.LocationAt = &responder.LocationAt
			}
			details.Responder = info
		}
	}
	return details, nil
}

// notifyAsync fires a notification side effect without blocking the caller.
func (s *Service) notifyAsync(requestID string, fn func(ctx context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("notification panicked",
					zap.String("request_id", requestID), zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

func validateCoords(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return apperrors.WithCode(apperrors.CodeInvalid, "latitude out of range")
	}
	if lng < -180 || lng > 180 {
		return apperrors.WithCode(apperrors.CodeInvalid, "longitude out of range")
	}
	return nil
}
