package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"RescueNet/internal/dispatch"
	"RescueNet/internal/models"
	"RescueNet/pkg/cache"
	"RescueNet/pkg/config"
	"RescueNet/pkg/push"
)

func newTestServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	config.GlobalConfig = &config.Config{CreateRate: "1000-M"}

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

	hub := push.NewHub(nil)
	t.Cleanup(hub.Close)

	c := cache.NewGoCache(cache.LocalConfig{DefaultExpiration: time.Minute, CleanupInterval: time.Minute})
	t.Cleanup(func() { c.Close() })

	ledger := dispatch.NewLedger(db)
	matcher, err := dispatch.NewMatcher(db, ledger, dispatch.DefaultMatchConfig())
	require.NoError(t, err)
	notifier := dispatch.NewNotifier(hub, nil, c, time.Minute)
	svc := dispatch.NewService(db, matcher, ledger, notifier, 2*time.Minute)

	engine := gin.New()
	NewHandlers(db, svc, hub).Register(engine)
	return engine, db
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, userID uint, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("X-User-ID", fmt.Sprintf("%d", userID))
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestIdentityRequired(t *testing.T) {
	engine, _ := newTestServer(t)

	w := doJSON(t, engine, http.MethodPost, "/api/requests", 0, gin.H{
		"category": "FIRE", "latitude": 40.0, "longitude": -74.0,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/requests/some-id", nil)
	req.Header.Set("X-User-ID", "not-a-number")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateRequestEndpoint(t *testing.T) {
	engine, db := newTestServer(t)

	w := doJSON(t, engine, http.MethodPost, "/api/requests", 1, gin.H{
		"category": "MEDICAL", "latitude": 40.0, "longitude": -74.0, "description": "help",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body struct {
		Data models.EmergencyRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.StatusPending, body.Data.Status)
	assert.Equal(t, models.PriorityCritical, body.Data.Priority)
	assert.Equal(t, uint(1), body.Data.RequesterID)

	var count int64
	require.NoError(t, db.Model(&models.EmergencyRequest{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// unknown category is rejected before anything is stored
	w = doJSON(t, engine, http.MethodPost, "/api/requests", 1, gin.H{
		"category": "VOLCANO", "latitude": 40.0, "longitude": -74.0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAcceptEndpointConflict(t *testing.T) {
	engine, db := newTestServer(t)

	require.NoError(t, db.Create(&models.Responder{
		UserID: 2, Verified: true, Available: true, LocationAt: time.Now(),
	}).Error)
	require.NoError(t, db.Create(&models.EmergencyRequest{
		ID: "r-1", RequesterID: 1, Category: models.CategoryFire,
		Priority: models.PriorityCritical, Status: models.StatusPending,
		Deadline: time.Now().Add(time.Minute),
	}).Error)

	w := doJSON(t, engine, http.MethodPost, "/api/requests/r-1/accept", 2, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// a second taker gets 409
	require.NoError(t, db.Create(&models.Responder{
		UserID: 3, Verified: true, Available: true, LocationAt: time.Now(),
	}).Error)
	w = doJSON(t, engine, http.MethodPost, "/api/requests/r-1/accept", 3, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/api/requests/missing/accept", 2, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRejectAndStatusEndpoints(t *testing.T) {
	engine, db := newTestServer(t)

	require.NoError(t, db.Create(&models.Responder{
		UserID: 2, Verified: true, Available: true, LocationAt: time.Now(),
	}).Error)
	require.NoError(t, db.Create(&models.EmergencyRequest{
		ID: "r-2", RequesterID: 1, Category: models.CategoryAccident,
		Priority: models.PriorityHigh, Status: models.StatusPending,
		Deadline: time.Now().Add(time.Minute),
	}).Error)

	w := doJSON(t, engine, http.MethodPost, "/api/requests/r-2/reject", 5, gin.H{"reason": "too far"})
	assert.Equal(t, http.StatusOK, w.Code)
	// repeating it stays 200
	w = doJSON(t, engine, http.MethodPost, "/api/requests/r-2/reject", 5, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// a stranger cannot cancel
	w = doJSON(t, engine, http.MethodPatch, "/api/requests/r-2/status", 9, gin.H{"status": "CANCELLED"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/api/requests/r-2/accept", 2, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodPatch, "/api/requests/r-2/status", 2, gin.H{"status": "IN_PROGRESS"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, engine, http.MethodPatch, "/api/requests/r-2/status", 1, gin.H{"status": "RESOLVED"})
	assert.Equal(t, http.StatusOK, w.Code)

	// feedback after resolution
	w = doJSON(t, engine, http.MethodPost, "/api/requests/r-2/feedback", 1, gin.H{"rating": 5, "comment": "thanks"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// rating out of range
	w = doJSON(t, engine, http.MethodPost, "/api/requests/r-2/feedback", 1, gin.H{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestDetailsEndpoint(t *testing.T) {
	engine, db := newTestServer(t)

	w := doJSON(t, engine, http.MethodGet, "/api/requests/missing", 1, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, db.Create(&models.EmergencyRequest{
		ID: "r-3", RequesterID: 1, Category: models.CategoryOther,
		Priority: models.PriorityMedium, Status: models.StatusPending,
		Deadline: time.Now().Add(time.Minute),
	}).Error)

	w = doJSON(t, engine, http.MethodGet, "/api/requests/r-3", 1, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data dispatch.Details `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "r-3", body.Data.Request.ID)
	assert.Nil(t, body.Data.Responder)
}

func TestResponderSelfServeEndpoints(t *testing.T) {
	engine, db := newTestServer(t)

	w := doJSON(t, engine, http.MethodPut, "/api/responders/me/availability", 7, gin.H{"available": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, engine, http.MethodPut, "/api/responders/me/location", 7, gin.H{
		"latitude": 40.5, "longitude": -74.5,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var responder models.Responder
	require.NoError(t, db.First(&responder, "user_id = ?", 7).Error)
	assert.True(t, responder.Available)
	assert.InDelta(t, 40.5, responder.Latitude, 0.001)
	assert.False(t, responder.Verified, "self-serve updates never verify")

	// missing body field
	w = doJSON(t, engine, http.MethodPut, "/api/responders/me/availability", 7, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// coordinates out of range
	w = doJSON(t, engine, http.MethodPut, "/api/responders/me/location", 7, gin.H{
		"latitude": 95.0, "longitude": 0.0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthCheck(t *testing.T) {
	engine, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/system/health", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
