package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"RescueNet/internal/models"
	apperrors "RescueNet/pkg/errors"
	"RescueNet/pkg/logger"
	"RescueNet/pkg/metrics"
)

const sweeperLockKey = "sos:sweeper:lock"

// Sweeper reclaims PENDING requests whose deadline has passed. Runs are
// self-excluding: a tick that fires while the previous run is still going is
// skipped outright, never queued. That guard is per process; multi-instance
// deployments additionally take a redis advisory lock when one is configured.
type Sweeper struct {
	db       *gorm.DB
	notifier *Notifier
	running  atomic.Bool

	rdb     *redis.Client
	lockTTL time.Duration
}

func NewSweeper(db *gorm.DB, notifier *Notifier) *Sweeper {
	return &Sweeper{db: db, notifier: notifier}
}

// WithRedisLock enables the distributed advisory lock.
func (s *Sweeper) WithRedisLock(client *redis.Client, ttl time.Duration) *Sweeper {
	if ttl <= 0 {
		ttl = 25 * time.Second
	}
	s.rdb = client
	s.lockTTL = ttl
	return s
}

// Run implements scheduler.Job.
func (s *Sweeper) Run(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		logger.Error("sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("sweep expired requests", zap.Int("count", n))
	}
}

// Sweep performs one scan-and-transition pass and returns how many requests
// it expired. A concurrent call while a sweep is in flight returns zero
// without touching anything.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.SweepRuns.WithLabelValues("skip").Inc()
		return 0, nil
	}
	defer s.running.Store(false)
	metrics.SweepRuns.WithLabelValues("run").Inc()

	if s.rdb != nil {
		ok, err := s.rdb.SetNX(ctx, sweeperLockKey, 1, s.lockTTL).Result()
		if err != nil {
			// lock store down: proceed on the local guard alone
			logger.Warn("sweeper lock unavailable", zap.Error(err))
		} else if !ok {
			metrics.SweepRuns.WithLabelValues("skip").Inc()
			return 0, nil
		}
	}

	now := time.Now()
	var stale []models.EmergencyRequest
	err := s.db.WithContext(ctx).
		Where("status = ? AND deadline < ?", models.StatusPending, now).
		Find(&stale).Error
	if err != nil {
		return 0, apperrors.WrapCode(apperrors.CodeUnavailable, err, "scan stale requests")
	}
	if len(stale) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(stale))
	for _, req := range stale {
		ids = append(ids, req.ID)
	}

	// the status guard keeps a request that got accepted between the scan
	// and this write out of the transition
	res := s.db.WithContext(ctx).Model(&models.EmergencyRequest{}).
		Where("id IN ? AND status = ?", ids, models.StatusPending).
		Updates(map[string]interface{}{
			"status":     models.StatusExpired,
			"expired_at": now,
		})
	if res.Error != nil {
		return 0, apperrors.WrapCode(apperrors.CodeUnavailable, res.Error, "expire requests")
	}
	metrics.RequestsExpired.Add(float64(res.RowsAffected))

	// only the sweeper writes EXPIRED, so rows from our scan that now carry
	// it are exactly the ones this pass transitioned
	var expired []models.EmergencyRequest
	err = s.db.WithContext(ctx).
		Where("id IN ? AND status = ?", ids, models.StatusExpired).
		Find(&expired).Error
	if err != nil {
		logger.Error("load expired requests for notification", zap.Error(err))
		return int(res.RowsAffected), nil
	}
	for i := range expired {
		s.notifier.NotifyExpired(ctx, &expired[i])
	}
	return int(res.RowsAffected), nil
}
