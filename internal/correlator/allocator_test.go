package correlator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocator_NeverReturnsZero(t *testing.T) {
	a := newAllocator()
	seen := make(map[uint16]bool, slotCount)

	for i := 0; i < slotCount*2; i++ {
		id := a.next()
		assert.NotZero(t, id)
		seen[id] = true
	}

	// every non-zero value must appear after two full cycles
	assert.Equal(t, slotCount-1, len(seen))
}

func TestAllocator_WrapsWithoutRepeatingWithinOneCycle(t *testing.T) {
	a := newAllocator()
	seen := make(map[uint16]bool, slotCount-1)

	for i := 0; i < slotCount-1; i++ {
		id := a.next()
		assert.False(t, seen[id], "id %d repeated within one cycle", id)
		seen[id] = true
	}
}
