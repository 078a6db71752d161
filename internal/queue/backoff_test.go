package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsExponentially(t *testing.T) {
	b := DefaultBackoff()
	b.Rand = func() float64 { return 0.5 } // jitter factor 1.0

	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 32*time.Second, b.Delay(5))
}

func TestBackoffCapsAtMax(t *testing.T) {
	b := DefaultBackoff()
	b.Rand = func() float64 { return 1.0 } // maximum jitter

	assert.Equal(t, time.Minute, b.Delay(6))
	assert.Equal(t, time.Minute, b.Delay(20))
}

func TestBackoffNeverBelowMin(t *testing.T) {
	b := DefaultBackoff()
	b.Rand = func() float64 { return 0 } // minimum jitter

	assert.GreaterOrEqual(t, b.Delay(0), b.Min)
}

func TestBackoffJitterSpreads(t *testing.T) {
	b := DefaultBackoff()

	low, high := b, b
	low.Rand = func() float64 { return 0 }
	high.Rand = func() float64 { return 0.999 }

	assert.Less(t, low.Delay(3), high.Delay(3))
}
