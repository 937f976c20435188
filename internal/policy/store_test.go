package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/linkpath/internal/linkreg"
)

func simpleAction() Action {
	return NewAction(FallbackDefaultRoute, Ordered, []Group{
		NewGroup(Ordered, []linkreg.Label{10, 20}),
	})
}

func TestAddDuplicateFails(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.Add(1, 100, simpleAction()))
	assert.ErrorIs(t, s.Add(1, 200, simpleAction()), ErrExists)
}

func TestDeleteUnknownFails(t *testing.T) {
	s := NewStore(nil)
	assert.ErrorIs(t, s.Delete(99), ErrNotFound)
}

func TestDeleteInUseFails(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.Add(1, 100, simpleAction()))
	require.NoError(t, s.IncRef(1))
	assert.ErrorIs(t, s.Delete(1), ErrInUse)

	require.NoError(t, s.DecRef(1))
	assert.NoError(t, s.Delete(1))
}

func TestDefaultRouteActionOverride(t *testing.T) {
	s := NewStore(nil)
	_, ok := s.DefaultRouteAction()
	assert.False(t, ok)

	s.SetDefaultRouteAction(simpleAction())
	a, ok := s.DefaultRouteAction()
	require.True(t, ok)
	assert.Equal(t, linkreg.Label(10), a.Groups[0].Labels[0])

	s.ClearDefaultRouteAction()
	_, ok = s.DefaultRouteAction()
	assert.False(t, ok)
}

func TestIndexConstantsCoverSpecExamples(t *testing.T) {
	nMinus1, mask := indexConstants(3)
	assert.Equal(t, uint32(2), nMinus1)
	assert.Equal(t, uint32(0x0F), mask)

	nMinus1, mask = indexConstants(254)
	assert.Equal(t, uint32(253), nMinus1)
	assert.Equal(t, uint32(0xFF), mask)
}

func TestFlowHashIndexNeverExceedsN(t *testing.T) {
	nMinus1, mask := indexConstants(3)
	for h := uint32(0); h < 256; h++ {
		idx := FlowHashIndex(h, nMinus1, mask)
		assert.LessOrEqual(t, idx, int(nMinus1))
		assert.GreaterOrEqual(t, idx, 0)
	}
}

func TestRecordCountersIncrement(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.Add(1, 100, simpleAction()))
	p, ok := s.Get(1)
	require.True(t, ok)

	s.RecordMatched(p)
	s.RecordApplied(p)
	s.RecordFallback(p)
	s.RecordDropped(p)
	s.RecordDefaultRoute(p)

	assert.Equal(t, uint64(1), p.Counters.Matched)
	assert.Equal(t, uint64(1), p.Counters.Applied)
	assert.Equal(t, uint64(1), p.Counters.Fallback)
	assert.Equal(t, uint64(1), p.Counters.Dropped)
	assert.Equal(t, uint64(1), p.Counters.DefaultRoute)
}
