package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"RescueNet/internal/models"
	"RescueNet/pkg/cache"
	"RescueNet/pkg/logger"
	"RescueNet/pkg/metrics"
	"RescueNet/pkg/notification"
	"RescueNet/pkg/push"
)

// Push channel event topics.
const (
	EventNewRequest    = "new_request"
	EventAccepted      = "accepted"
	EventStatusChanged = "status_changed"
	EventExpired       = "expired"
	EventRemoved       = "removed"
)

// PushSender is the push channel: target one recipient by identity, or all.
type PushSender interface {
	SendToUser(userID string, msg *push.Message) bool
	Broadcast(msg *push.Message)
}

// Notifier fans state-change events out to requesters and candidates.
// Delivery is best-effort: failures are logged and counted, never returned
// to the lifecycle operation that triggered them. The notified-candidate
// set is cached with a bounded TTL purely to avoid re-deriving candidate
// lists; the Ledger stays authoritative for exclusion.
type Notifier struct {
	hub    PushSender
	mailer *notification.Mailer
	cache  cache.Cache
	ttl    time.Duration
}

func NewNotifier(hub PushSender, mailer *notification.Mailer, c cache.Cache, notifiedTTL time.Duration) *Notifier {
	if notifiedTTL <= 0 {
		notifiedTTL = 2 * time.Minute
	}
	return &Notifier{hub: hub, mailer: mailer, cache: c, ttl: notifiedTTL}
}

func notifiedKey(requestID string) string { return "notified:" + requestID }

// NotifyCandidates offers the request to each candidate and remembers who
// was offered.
func (n *Notifier) NotifyCandidates(ctx context.Context, req *models.EmergencyRequest, candidates []Candidate) {
	ids := make([]uint, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.Responder.UserID)

		online := n.hub.SendToUser(userKey(c.Responder.UserID), &push.Message{
			Type: EventNewRequest,
			Data: map[string]interface{}{
				"requestId": req.ID,
				"category":  req.Category,
				"priority":  req.Priority,
				"location":  map[string]float64{"lat": req.Latitude, "lng": req.Longitude},
				"distance":  c.DistanceKm,
			},
		})
		metrics.NotificationsSent.WithLabelValues(EventNewRequest).Inc()
		if !online {
			metrics.NotificationsFailed.WithLabelValues(EventNewRequest, "push").Inc()
			logger.Debug("candidate offline, push queued nowhere",
				zap.String("request_id", req.ID), zap.Uint("responder_id", c.Responder.UserID))
		}

		if n.mailer != nil && c.Responder.Email != "" {
			go n.sendMail(c.Responder.Email, "Emergency nearby",
				fmt.Sprintf("A %s emergency was reported %.1f km from you. Open the app to respond.", req.Category, c.DistanceKm),
				req.ID, EventNewRequest)
		}
	}

	if n.cache != nil && len(ids) > 0 {
		if err := n.cache.Set(ctx, notifiedKey(req.ID), ids, n.ttl); err != nil {
			logger.Warn("cache notified set failed", zap.String("request_id", req.ID), zap.Error(err))
		}
	}
}

// NotifyAccepted tells the requester a responder is coming and withdraws the
// offer from the remaining candidates.
func (n *Notifier) NotifyAccepted(ctx context.Context, req *models.EmergencyRequest) {
	if req.AcceptedBy == nil {
		return
	}

	n.hub.SendToUser(userKey(req.RequesterID), &push.Message{
		Type: EventAccepted,
		Data: map[string]interface{}{
			"requestId":   req.ID,
			"responderId": *req.AcceptedBy,
			"acceptedAt":  req.AcceptedAt,
		},
	})
	metrics.NotificationsSent.WithLabelValues(EventAccepted).Inc()

	for _, id := range n.NotifiedResponders(ctx, req.ID) {
		if id == *req.AcceptedBy {
			continue
		}
		n.hub.SendToUser(userKey(id), &push.Message{
			Type: EventRemoved,
			Data: map[string]interface{}{"requestId": req.ID},
		})
		metrics.NotificationsSent.WithLabelValues(EventRemoved).Inc()
	}
	n.forgetNotified(ctx, req.ID)
}

// NotifyStatusChanged informs the requester and the assigned responder.
func (n *Notifier) NotifyStatusChanged(ctx context.Context, req *models.EmergencyRequest) {
	msg := &push.Message{
		Type: EventStatusChanged,
		Data: map[string]interface{}{
			"requestId": req.ID,
			"status":    req.Status,
			"updatedAt": req.UpdatedAt,
		},
	}
	n.hub.SendToUser(userKey(req.RequesterID), msg)
	metrics.NotificationsSent.WithLabelValues(EventStatusChanged).Inc()
	if req.AcceptedBy != nil {
		n.hub.SendToUser(userKey(*req.AcceptedBy), msg)
		metrics.NotificationsSent.WithLabelValues(EventStatusChanged).Inc()
	}
}

// NotifyExpired tells the requester no responder was found and instructs
// candidates still holding the offer to drop it. When the notified set was
// lost the removal falls back to a broadcast; losing the cache can only cost
// extra messages, never correctness.
func (n *Notifier) NotifyExpired(ctx context.Context, req *models.EmergencyRequest) {
	n.hub.SendToUser(userKey(req.RequesterID), &push.Message{
		Type: EventExpired,
		Data: map[string]interface{}{"requestId": req.ID},
	})
	metrics.NotificationsSent.WithLabelValues(EventExpired).Inc()

	removed := &push.Message{
		Type: EventRemoved,
		Data: map[string]interface{}{"requestId": req.ID},
	}
	ids := n.NotifiedResponders(ctx, req.ID)
	if len(ids) > 0 {
		for _, id := range ids {
			n.hub.SendToUser(userKey(id), removed)
			metrics.NotificationsSent.WithLabelValues(EventRemoved).Inc()
		}
	} else {
		n.hub.Broadcast(removed)
		metrics.NotificationsSent.WithLabelValues(EventRemoved).Inc()
	}
	n.forgetNotified(ctx, req.ID)
}

// NotifiedResponders returns who the request was offered to, best effort.
func (n *Notifier) NotifiedResponders(ctx context.Context, requestID string) []uint {
	if n.cache == nil {
		return nil
	}
	value, ok := n.cache.Get(ctx, notifiedKey(requestID))
	if !ok {
		return nil
	}
	return toUintSlice(value)
}

func (n *Notifier) forgetNotified(ctx context.Context, requestID string) {
	if n.cache == nil {
		return
	}
	if err := n.cache.Delete(ctx, notifiedKey(requestID)); err != nil {
		logger.Debug("drop notified set failed", zap.String("request_id", requestID), zap.Error(err))
	}
}

func (n *Notifier) sendMail(to, subject, body, requestID, event string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := n.mailer.Send(ctx, to, subject, body); err != nil {
		metrics.NotificationsFailed.WithLabelValues(event, "mail").Inc()
		logger.Warn("mail fallback failed",
			zap.String("request_id", requestID), zap.String("stage", event), zap.Error(err))
	}
}

func userKey(id uint) string { return fmt.Sprintf("%d", id) }

// toUintSlice normalizes the cached id list; the redis backend round-trips
// through JSON and hands back []interface{} of float64.
func toUintSlice(v interface{}) []uint {
	switch ids := v.(type) {
	case []uint:
		return ids
	case []interface{}:
		out := make([]uint, 0, len(ids))
		for _, raw := range ids {
			if f, ok := raw.(float64); ok {
				out = append(out, uint(f))
			}
		}
		return out
	default:
		return nil
	}
}
