package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RescueNet/internal/models"
	apperrors "RescueNet/pkg/errors"
)

// Around lat 40, 0.004° of latitude is ~0.44 km and 0.02° is ~2.2 km, which
// puts responders cleanly inside or outside the 1 km tier.
const (
	testLat = 40.0
	testLng = -74.0
)

func TestFindCandidatesNearestTierWins(t *testing.T) {
	env := newTestEnv(t, 2*time.Minute)
	ctx := context.Background()

	seedResponder(t, env.db, 1, testLat+0.004, testLng, 3.0, true, true) // ~0.44 km
	seedResponder(t, env.db, 2, testLat+0.006, testLng, 5.0, true, true) // ~0.67 km
	seedResponder(t, env.db, 3, testLat+0.02, testLng, 5.0, true, true)  // ~2.2 km

	req := &models.EmergencyRequest{ID: "m-1", Latitude: testLat, Longitude: testLng}
	got, err := env.matcher.FindCandidates(ctx, req)
	require.NoError(t, err)

	// only the 1 km tier, rating descending then distance ascending
	require.Len(t, got, 2)
	assert.Equal(t, uint(2), got[0].Responder.UserID)
	assert.Equal(t, uint(1), got[1].Responder.UserID)
	assert.InDelta(t, 0.67, got[0].DistanceKm, 0.05)
}

func TestFindCandidatesDistanceBreaksRatingTie(t *testing.T) {
	env := newTestEnv(t, 2*time.Minute)
	ctx := context.Background()

	seedResponder(t, env.db, 1, testLat+0.006, testLng, 4.0, true, true)
	seedResponder(t, env.db, 2, testLat+0.003, testLng, 4.0, true, true)

	req := &models.EmergencyRequest{ID: "m-tie", Latitude: testLat, Longitude: testLng}
	got, err := env.matcher.FindCandidates(ctx, req)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint(2), got[0].Responder.UserID)
}

func TestFindCandidatesExpandsPastRejectedTier(t *testing.T) {
	env := newTestEnv(t, 2*time.Minute)
	ctx := context.Background()

	seedResponder(t, env.db, 1, testLat+0.004, testLng, 4.0, true, true) // 1 km tier
	seedResponder(t, env.db, 2, testLat+0.02, testLng, 4.0, true, true)  // 3 km tier

	req := &models.EmergencyRequest{ID: "m-expand", Latitude: testLat, Longitude: testLng}
	require.NoError(t, env.ledger.Record(ctx, req.ID, 1, "busy"))

	// everyone in the inner tier declined, so the search widens
	got, err := env.matcher.FindCandidates(ctx, req)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint(2), got[0].Responder.UserID)
}

func TestFindCandidatesExcludesRejectedWithinTier(t *testing.T) {
	env := newTestEnv(t, 2*time.Minute)
	ctx := context.Background()

	seedResponder(t, env.db, 1, testLat+0.004, testLng, 5.0, true, true)
	seedResponder(t, env.db, 2, testLat+0.006, testLng, 3.0, true, true)

	req := &models.EmergencyRequest{ID: "m-rej", Latitude: testLat, Longitude: testLng}
	require.NoError(t, env.ledger.Record(ctx, req.ID, 1, ""))

	got, err := env.matcher.FindCandidates(ctx, req)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint(2), got[0].Responder.UserID)

	// rejections from a different request do not leak
	other := &models.EmergencyRequest{ID: "m-other", Latitude: testLat, Longitude: testLng}
	got, err = env.matcher.FindCandidates(ctx, other)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFindCandidatesSkipsUnmatchable(t *testing.T) {
	env := newTestEnv(t, 2*time.Minute)
	ctx := context.Background()

	seedResponder(t, env.db, 1, testLat+0.004, testLng, 5.0, false, true) // unverified
	seedResponder(t, env.db, 2, testLat+0.004, testLng, 5.0, true, false) // unavailable
	seedResponder(t, env.db, 3, testLat+0.006, testLng, 2.0, true, true)

	req := &models.EmergencyRequest{ID: "m-skip", Latitude: testLat, Longitude: testLng}
	got, err := env.matcher.FindCandidates(ctx, req)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint(3), got[0].Responder.UserID)
}

func TestFindCandidatesEmptyWhenNobodyInRange(t *testing.T) {
	env := newTestEnv(t, 2*time.Minute)
	ctx := context.Background()

	seedResponder(t, env.db, 1, testLat+1.0, testLng, 5.0, true, true) // ~111 km away

	req := &models.EmergencyRequest{ID: "m-empty", Latitude: testLat, Longitude: testLng}
	got, err := env.matcher.FindCandidates(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindCandidatesCapsResults(t *testing.T) {
	env := newTestEnv(t, 2*time.Minute)
	ctx := context.Background()

	cfg := MatchConfig{RadiiKm: []float64{1, 3}, MaxCandidates: 3}
	matcher, err := NewMatcher(env.db, env.ledger, cfg)
	require.NoError(t, err)

	for i := uint(1); i <= 6; i++ {
		seedResponder(t, env.db, i, testLat+0.001*float64(i), testLng, float64(i), true, true)
	}

	req := &models.EmergencyRequest{ID: "m-cap", Latitude: testLat, Longitude: testLng}
	got, err := matcher.FindCandidates(ctx, req)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// highest rated survive the cap
	assert.Equal(t, uint(6), got[0].Responder.UserID)
	assert.Equal(t, uint(5), got[1].Responder.UserID)
	assert.Equal(t, uint(4), got[2].Responder.UserID)
}

func TestMatchConfigValidation(t *testing.T) {
	env := newTestEnv(t, 2*time.Minute)

	_, err := NewMatcher(env.db, env.ledger, MatchConfig{RadiiKm: nil})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalid))

	_, err = NewMatcher(env.db, env.ledger, MatchConfig{RadiiKm: []float64{1, 1, 3}})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalid))

	_, err = NewMatcher(env.db, env.ledger, MatchConfig{RadiiKm: []float64{3, 1}})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalid))
}

func TestFindCandidatesPropagatesStoreErrors(t *testing.T) {
	env := newTestEnv(t, 2*time.Minute)
	ctx := context.Background()

	require.NoError(t, env.db.Migrator().DropTable(&models.Responder{}))

	req := &models.EmergencyRequest{ID: "m-err", Latitude: testLat, Longitude: testLng}
	_, err := env.matcher.FindCandidates(ctx, req)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnavailable))
}

func TestHaversine(t *testing.T) {
	// one degree of latitude is close to 111 km
	assert.InDelta(t, 111.2, haversineKm(40, -74, 41, -74), 0.5)
	assert.Zero(t, haversineKm(40, -74, 40, -74))
}
