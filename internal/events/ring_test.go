package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingOverflowDropsOldest(t *testing.T) {
	r := newRing(3)
	for i := 0; i < 5; i++ {
		r.append(&Event{ID: fmt.Sprintf("e%d", i)})
	}

	assert.Equal(t, 3, r.len())
	got := r.newestFirst(0)
	assert.Equal(t, "e4", got[0].ID)
	assert.Equal(t, "e3", got[1].ID)
	assert.Equal(t, "e2", got[2].ID)
}

func TestRingNewestFirstLimit(t *testing.T) {
	r := newRing(10)
	for i := 0; i < 4; i++ {
		r.append(&Event{ID: fmt.Sprintf("e%d", i)})
	}

	got := r.newestFirst(2)
	assert.Len(t, got, 2)
	assert.Equal(t, "e3", got[0].ID)

	assert.Len(t, r.newestFirst(100), 4)
	assert.Empty(t, newRing(5).newestFirst(0))
}
