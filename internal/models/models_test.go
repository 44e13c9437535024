package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityFor(t *testing.T) {
	cases := []struct {
		category Category
		want     Priority
	}{
		{CategoryFire, PriorityCritical},
		{CategoryMedical, PriorityCritical},
		{CategoryNaturalDisaster, PriorityCritical},
		{CategoryAccident, PriorityHigh},
		{CategoryCrime, PriorityHigh},
		{CategoryProperty, PriorityMedium},
		{CategoryOther, PriorityMedium},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PriorityFor(tc.category), "category %s", tc.category)
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusAccepted))
	assert.True(t, CanTransition(StatusPending, StatusExpired))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))
	assert.True(t, CanTransition(StatusAccepted, StatusInProgress))
	assert.True(t, CanTransition(StatusAccepted, StatusResolved))
	assert.True(t, CanTransition(StatusAccepted, StatusCancelled))
	assert.True(t, CanTransition(StatusInProgress, StatusResolved))

	// terminal states never leave
	assert.False(t, CanTransition(StatusResolved, StatusCancelled))
	assert.False(t, CanTransition(StatusExpired, StatusAccepted))
	assert.False(t, CanTransition(StatusCancelled, StatusPending))

	// no backwards or skipping edges
	assert.False(t, CanTransition(StatusPending, StatusInProgress))
	assert.False(t, CanTransition(StatusPending, StatusResolved))
	assert.False(t, CanTransition(StatusInProgress, StatusAccepted))
	assert.False(t, CanTransition(StatusAccepted, StatusExpired))
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusResolved.Terminal())
	assert.True(t, StatusExpired.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusAccepted.Terminal())
	assert.False(t, StatusInProgress.Terminal())
}

func TestCategoryValid(t *testing.T) {
	assert.True(t, CategoryFire.Valid())
	assert.True(t, CategoryOther.Valid())
	assert.False(t, Category("EARTHQUAKE_DRILL").Valid())
	assert.False(t, Category("").Valid())
}
