package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffForDoublesUntilCap(t *testing.T) {
	base, max := time.Second, 10*time.Second
	assert.Equal(t, time.Second, backoffFor(0, base, max))
	assert.Equal(t, time.Second, backoffFor(1, base, max))
	assert.Equal(t, 2*time.Second, backoffFor(2, base, max))
	assert.Equal(t, 4*time.Second, backoffFor(3, base, max))
	assert.Equal(t, 8*time.Second, backoffFor(4, base, max))
	assert.Equal(t, max, backoffFor(5, base, max))
	assert.Equal(t, max, backoffFor(50, base, max))
}

func TestWithJitterStaysInWindow(t *testing.T) {
	assert.Zero(t, withJitter(0))
	for i := 0; i < 100; i++ {
		got := withJitter(time.Second)
		assert.GreaterOrEqual(t, got, time.Second)
		assert.Less(t, got, time.Second+jitterWindow)
	}
}
