package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"RescueNet/internal/models"
	"RescueNet/pkg/cache"
	"RescueNet/pkg/push"
)

// newTestDB opens an isolated in-memory database. A single connection keeps
// the memory store alive and serializes writes the way a row lock would.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.EmergencyRequest{},
		&models.Responder{},
		&models.Rejection{},
		&models.Feedback{},
	))
	return db
}

// fakePush records every send for assertions.
type fakePush struct {
	mu         sync.Mutex
	sent       []sentMessage
	broadcasts []*push.Message
}

type sentMessage struct {
	user string
	msg  *push.Message
}

func (f *fakePush) SendToUser(userID string, msg *push.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{user: userID, msg: msg})
	return true
}

func (f *fakePush) Broadcast(msg *push.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, msg)
}

func (f *fakePush) sentTo(userID, event string) []*push.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*push.Message
	for _, s := range f.sent {
		if s.user == userID && s.msg.Type == event {
			out = append(out, s.msg)
		}
	}
	return out
}

func (f *fakePush) countType(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.msg.Type == event {
			n++
		}
	}
	return n
}

type testEnv struct {
	db       *gorm.DB
	svc      *Service
	matcher  *Matcher
	ledger   *Ledger
	notifier *Notifier
	hub      *fakePush
	cache    cache.Cache
}

func newTestEnv(t *testing.T, deadlineWindow time.Duration) *testEnv {
	t.Helper()

	db := newTestDB(t)
	ledger := NewLedger(db)
	matcher, err := NewMatcher(db, ledger, DefaultMatchConfig())
	require.NoError(t, err)

	hub := &fakePush{}
	c := cache.NewGoCache(cache.LocalConfig{
		DefaultExpiration: time.Minute,
		CleanupInterval:   time.Minute,
	})
	t.Cleanup(func() { c.Close() })

	notifier := NewNotifier(hub, nil, c, time.Minute)
	svc := NewService(db, matcher, ledger, notifier, deadlineWindow)
	return &testEnv{db: db, svc: svc, matcher: matcher, ledger: ledger, notifier: notifier, hub: hub, cache: c}
}

func seedResponder(t *testing.T, db *gorm.DB, id uint, lat, lng, rating float64, verified, available bool) {
	t.Helper()
	require.NoError(t, db.Create(&models.Responder{
		UserID:     id,
		Name:       "responder",
		Verified:   verified,
		Available:  available,
		Rating:     rating,
		Latitude:   lat,
		Longitude:  lng,
		LocationAt: time.Now(),
	}).Error)
}

func seedRequest(t *testing.T, db *gorm.DB, req *models.EmergencyRequest) {
	t.Helper()
	if req.Status == "" {
		req.Status = models.StatusPending
	}
	if req.Priority == "" {
		req.Priority = models.PriorityFor(req.Category)
	}
	require.NoError(t, db.Create(req).Error)
}
