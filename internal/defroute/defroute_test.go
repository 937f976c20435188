package defroute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/linkpath/internal/linkreg"
)

type fakeSource struct {
	found   bool
	handle  string
	onChange func([]linkreg.AdjID)
	subErr  error
	subscribes int
}

func (f *fakeSource) LookupDefaultRoute(family linkreg.Family) (string, bool) {
	return f.handle, f.found
}

type fakeHandle struct{}

func (fakeHandle) Unsubscribe() {}

func (f *fakeSource) Subscribe(handle string, onChange func([]linkreg.AdjID)) (linkreg.BackWalkHandle, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.subscribes++
	f.onChange = onChange
	return fakeHandle{}, nil
}

func TestRetryNoopWhenEntryNotFound(t *testing.T) {
	src := &fakeSource{found: false}
	tr := New(src)
	tr.Retry(linkreg.V4)
	assert.False(t, tr.Tracking(linkreg.V4))
}

func TestRetryStartsTrackingOnceFound(t *testing.T) {
	src := &fakeSource{found: true, handle: "fib-0"}
	tr := New(src)
	tr.Retry(linkreg.V4)
	require.True(t, tr.Tracking(linkreg.V4))

	src.onChange([]linkreg.AdjID{1, 2, 3})
	assert.True(t, tr.IsDefaultRouteAdjacency(1, linkreg.V4))
	assert.True(t, tr.IsDefaultRouteAdjacency(3, linkreg.V4))
	assert.False(t, tr.IsDefaultRouteAdjacency(4, linkreg.V4))
}

func TestReplaceSetDropsStaleAdjacencies(t *testing.T) {
	src := &fakeSource{found: true, handle: "fib-0"}
	tr := New(src)
	tr.Retry(linkreg.V4)

	src.onChange([]linkreg.AdjID{1, 2})
	require.True(t, tr.IsDefaultRouteAdjacency(1, linkreg.V4))

	src.onChange([]linkreg.AdjID{2, 3})
	assert.False(t, tr.IsDefaultRouteAdjacency(1, linkreg.V4))
	assert.True(t, tr.IsDefaultRouteAdjacency(2, linkreg.V4))
	assert.True(t, tr.IsDefaultRouteAdjacency(3, linkreg.V4))
}

func TestFamiliesAreIndependent(t *testing.T) {
	src := &fakeSource{found: true, handle: "fib-0"}
	tr := New(src)
	tr.Retry(linkreg.V4)
	src.onChange([]linkreg.AdjID{5})

	assert.True(t, tr.IsDefaultRouteAdjacency(5, linkreg.V4))
	assert.False(t, tr.IsDefaultRouteAdjacency(5, linkreg.V6))
}

func TestRetryIsIdempotentOnceTracking(t *testing.T) {
	src := &fakeSource{found: true, handle: "fib-0"}
	tr := New(src)
	tr.Retry(linkreg.V4)
	tr.Retry(linkreg.V4) // second call must not re-subscribe
	assert.True(t, tr.Tracking(linkreg.V4))
	assert.Equal(t, 1, src.subscribes)
}
