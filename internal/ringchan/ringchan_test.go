package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForceSendOverwritesOldestWhenFull(t *testing.T) {
	r := New[int](2)
	assert.False(t, r.ForceSend(1))
	assert.False(t, r.ForceSend(2))
	assert.True(t, r.ForceSend(3))

	// Oldest element was evicted to make room.
	assert.Equal(t, 2, <-r.C())
	assert.Equal(t, 3, <-r.C())

	stats := r.Snapshot()
	assert.Equal(t, int64(3), stats.Written)
	assert.Equal(t, int64(1), stats.Overwritten)
}

func TestCloseEndsRange(t *testing.T) {
	r := New[int](4)
	r.ForceSend(1)
	r.ForceSend(2)
	r.Close()

	var got []int
	for v := range r.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2}, got)
}

func TestNewRejectsZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
