package localspool

import (
	"testing"

	"github.com/nodecore/ledgercore/params"
	"github.com/stretchr/testify/assert"
)

func TestAllocBumpsAndZeroes(t *testing.T) {
	assert := assert.New(t)
	s := newStack()

	region, err := s.Alloc(16)
	assert.NoError(err)
	assert.Len(region, 16)
	for _, b := range region {
		assert.Equal(byte(0), b)
	}

	mark := s.Mark()
	_, err = s.Alloc(8)
	assert.NoError(err)
	s.Rewind(mark)
	assert.Equal(mark, s.top)

	s.Free()
	assert.Equal(0, s.top)
}

func TestAllocRejectsOversizedRequest(t *testing.T) {
	assert := assert.New(t)
	s := newStack()
	_, err := s.Alloc(params.ContractLocalsStackSize + 1)
	assert.ErrorIs(err, ErrStackFull)
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	assert := assert.New(t)
	p := New()
	idx, stack := p.Acquire(0)
	assert.GreaterOrEqual(idx, 0)
	assert.NotNil(stack)
	p.Release(idx)

	idx2, _ := p.Acquire(0)
	assert.GreaterOrEqual(idx2, 0)
	p.Release(idx2)
}

// TestStacksToIgnoreReservesLowSlots is spec §8 scenario 6: saturate
// every slot but slot 0 with low-priority holders, then confirm a
// writer-priority caller (stacksToIgnore=0) still gets slot 0 without
// waiting, while read-only callers (stacksToIgnore=1) never touch it.
func TestStacksToIgnoreReservesLowSlots(t *testing.T) {
	assert := assert.New(t)
	p := New()

	held := make([]int, 0, params.ContractLocalsStackCount-1)
	for i := 0; i < params.ContractLocalsStackCount-1; i++ {
		idx, _ := p.Acquire(1)
		assert.NotEqual(0, idx)
		held = append(held, idx)
	}

	writerIdx, _ := p.Acquire(0)
	assert.Equal(0, writerIdx)

	p.Release(writerIdx)
	for _, idx := range held {
		p.Release(idx)
	}
}
