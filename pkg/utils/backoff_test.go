package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateExponentialBackoffWithJitter(t *testing.T) {
	base := 5 * time.Second
	max := 5 * time.Minute

	t.Run("non-positive count yields no delay", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), CalculateExponentialBackoffWithJitter(0, base, max))
		assert.Equal(t, time.Duration(0), CalculateExponentialBackoffWithJitter(-1, base, max))
	})

	t.Run("delay stays within jitter band", func(t *testing.T) {
		for attempt := 1; attempt <= 5; attempt++ {
			expected := base * time.Duration(1<<(attempt-1))
			for i := 0; i < 20; i++ {
				delay := CalculateExponentialBackoffWithJitter(attempt, base, max)
				assert.GreaterOrEqual(t, delay, expected-expected/8)
				assert.LessOrEqual(t, delay, expected+expected/8)
			}
		}
	})

	t.Run("delay is capped at max", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			delay := CalculateExponentialBackoffWithJitter(10, base, max)
			assert.LessOrEqual(t, delay, max)
		}
	})

	t.Run("successive attempts grow", func(t *testing.T) {
		first := CalculateExponentialBackoffWithJitter(1, base, max)
		fourth := CalculateExponentialBackoffWithJitter(4, base, max)
		assert.Greater(t, fourth, first)
	})
}
