package linkreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistrar is a BackWalkRegistrar test double: it hands back a handle
// the test can drive directly instead of going through netlink.
type fakeRegistrar struct {
	onChange map[int]func(BackWalkEvent)
	next     int
	initial  BackWalkEvent
	err      error
}

type fakeHandle struct {
	unsubscribed *bool
}

func (h *fakeHandle) Unsubscribe() { *h.unsubscribed = true }

func newFakeRegistrar(initial BackWalkEvent) *fakeRegistrar {
	return &fakeRegistrar{onChange: make(map[int]func(BackWalkEvent)), initial: initial}
}

func (f *fakeRegistrar) Subscribe(nh NextHop, onChange func(BackWalkEvent)) (BackWalkHandle, BackWalkEvent, error) {
	if f.err != nil {
		return nil, BackWalkEvent{}, f.err
	}
	id := f.next
	f.next++
	f.onChange[id] = onChange
	unsub := false
	return &fakeHandle{unsubscribed: &unsub}, f.initial, nil
}

func (f *fakeRegistrar) fire(id int, ev BackWalkEvent) {
	f.onChange[id](ev)
}

func TestLinkAddRejectsOutOfRangeLabel(t *testing.T) {
	r := New(newFakeRegistrar(BackWalkEvent{Resolved: true, AdjID: 1}), nil)
	err := r.LinkAdd(0, 255, NextHop{Family: V4})
	assert.ErrorIs(t, err, ErrLabelOutOfRange)
	_, ok := r.LinkByInterface(0)
	assert.False(t, ok)
}

func TestLinkAddRejectsDuplicateInterface(t *testing.T) {
	reg := newFakeRegistrar(BackWalkEvent{Resolved: true, AdjID: 1})
	r := New(reg, nil)
	require.NoError(t, r.LinkAdd(0, 10, NextHop{Family: V4}))
	err := r.LinkAdd(0, 20, NextHop{Family: V4})
	assert.ErrorIs(t, err, ErrInterfaceExists)
}

func TestLinkAddPublishesAdminMap(t *testing.T) {
	reg := newFakeRegistrar(BackWalkEvent{Resolved: true, AdjID: 5, NextNode: "ip4-rewrite"})
	r := New(reg, nil)
	require.NoError(t, r.LinkAdd(0, 10, NextHop{Family: V4}))

	link, ok := r.LinkByInterface(0)
	require.True(t, ok)
	assert.Equal(t, StateReachable, link.State)
	assert.Equal(t, Label(10), r.adminLabel(5))
	assert.Equal(t, Label(10), r.reachableLabel(5))
}

func TestLinkDelClearsMapsBeforeSlotRelease(t *testing.T) {
	reg := newFakeRegistrar(BackWalkEvent{Resolved: true, AdjID: 5})
	r := New(reg, nil)
	require.NoError(t, r.LinkAdd(0, 10, NextHop{Family: V4}))
	require.NoError(t, r.LinkDel(0))

	assert.Equal(t, LabelInvalid, r.adminLabel(5))
	assert.Equal(t, LabelInvalid, r.reachableLabel(5))
	_, ok := r.LinkByInterface(0)
	assert.False(t, ok)
}

func TestLinkDelIdempotent(t *testing.T) {
	r := New(newFakeRegistrar(BackWalkEvent{}), nil)
	assert.NoError(t, r.LinkDel(42))
}

func TestReachabilityFlipsOnBackWalk(t *testing.T) {
	reg := newFakeRegistrar(BackWalkEvent{Resolved: true, AdjID: 7})
	r := New(reg, nil)
	require.NoError(t, r.LinkAdd(0, 10, NextHop{Family: V4}))
	require.Equal(t, Label(10), r.reachableLabel(7))

	reg.fire(0, BackWalkEvent{Resolved: false})
	assert.Equal(t, LabelInvalid, r.reachableLabel(7))
	assert.Equal(t, Label(10), r.adminLabel(7)) // admin map unaffected by reachability loss

	reg.fire(0, BackWalkEvent{Resolved: true, AdjID: 7})
	assert.Equal(t, Label(10), r.reachableLabel(7))
}

func TestQualitySetClearsReachableMapOnlyOnTotalLoss(t *testing.T) {
	reg := newFakeRegistrar(BackWalkEvent{Resolved: true, AdjID: 3})
	r := New(reg, nil)
	require.NoError(t, r.LinkAdd(0, 10, NextHop{Family: V4}))

	require.NoError(t, r.QualitySet(0, Quality{Loss: 100}))
	assert.Equal(t, LabelInvalid, r.reachableLabel(3))
	assert.Equal(t, Label(10), r.adminLabel(3), "admin_map must survive a quality-driven down per the Open Question decision")

	require.NoError(t, r.QualitySet(0, Quality{Loss: 0}))
	assert.Equal(t, Label(10), r.reachableLabel(3))
}

func TestResolveDefaultRouteBypassesIntersection(t *testing.T) {
	reg := newFakeRegistrar(BackWalkEvent{Resolved: true, AdjID: 9})
	r := New(reg, nil)
	require.NoError(t, r.LinkAdd(0, 10, NextHop{Family: V4}))

	dpo, ok := r.Resolve(10, LoadBalance{}, true)
	assert.True(t, ok)
	assert.Equal(t, AdjID(9), dpo.AdjID)
}

func TestResolveDefaultRouteFailsWhenUnreachable(t *testing.T) {
	reg := newFakeRegistrar(BackWalkEvent{Resolved: false})
	r := New(reg, nil)
	require.NoError(t, r.LinkAdd(0, 10, NextHop{Family: V4}))

	_, ok := r.Resolve(10, LoadBalance{}, true)
	assert.False(t, ok)
}

func TestResolveIntersectsECMPBuckets(t *testing.T) {
	regA := newFakeRegistrar(BackWalkEvent{Resolved: true, AdjID: 1})
	r := New(regA, nil)
	require.NoError(t, r.LinkAdd(0, 10, NextHop{Family: V4}))

	lb := LoadBalance{Buckets: []DPO{{AdjID: 1, NextNode: "n1"}, {AdjID: 2, NextNode: "n2"}}}
	dpo, ok := r.Resolve(10, lb, false)
	require.True(t, ok)
	assert.Equal(t, AdjID(1), dpo.AdjID)
	assert.Equal(t, "n1", dpo.NextNode)
}

func TestIsLabeledOrDefaultRoute(t *testing.T) {
	reg := newFakeRegistrar(BackWalkEvent{Resolved: true, AdjID: 4})
	r := New(reg, nil)
	require.NoError(t, r.LinkAdd(0, 10, NextHop{Family: V4}))

	assert.True(t, r.IsLabeledOrDefaultRoute(LoadBalance{Buckets: []DPO{{AdjID: 4}}}, false))
	assert.False(t, r.IsLabeledOrDefaultRoute(LoadBalance{Buckets: []DPO{{AdjID: 99}}}, false))
	assert.True(t, r.IsLabeledOrDefaultRoute(LoadBalance{}, true))
}
