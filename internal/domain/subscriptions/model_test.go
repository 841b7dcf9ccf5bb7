package subscriptions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscription_Usable(t *testing.T) {
	s := Subscription{
		Status:         StatusActive,
		ActivationDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		ExpirationDate: time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC),
	}

	assert.True(t, s.Usable(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
	assert.True(t, s.Usable(s.ExpirationDate), "last day is still valid")
	assert.False(t, s.Usable(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)))

	s.Status = StatusSuspended
	assert.False(t, s.Usable(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
}

func TestSubscription_DaysLeft(t *testing.T) {
	s := Subscription{ExpirationDate: time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, 5, s.DaysLeft(time.Date(2024, 2, 4, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, s.DaysLeft(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestNormalizePlate(t *testing.T) {
	assert.Equal(t, "AB123CD", NormalizePlate("  ab123cd "))
	assert.Equal(t, "", NormalizePlate("   "))
	assert.True(t, StatusExpired.Valid())
	assert.False(t, Status("paused").Valid())
}
