// Package defroute is the Default-Route Tracker: it tracks which
// adjacencies are currently reachable via the default route (0.0.0.0/0,
// ::/0) per address family and answers an O(1) membership query.
package defroute

import (
	"sync"
	"sync/atomic"

	"grimm.is/linkpath/internal/linkreg"
	"grimm.is/linkpath/internal/logging"
)

// Source is the narrow FIB interface the tracker consumes to find and
// subscribe to the default-route entry. The real FIB is out of scope
// (spec.md §1); callers supply an adapter over their routing subsystem.
type Source interface {
	// LookupDefaultRoute returns an opaque FIB entry handle for family's
	// all-zeros prefix, or found == false if no such entry exists yet.
	LookupDefaultRoute(family linkreg.Family) (handle string, found bool)
	// Subscribe registers onChange to be called with the full current set
	// of adjacencies reachable via handle, on every back-walk.
	Subscribe(handle string, onChange func(adjacencies []linkreg.AdjID)) (linkreg.BackWalkHandle, error)
}

// trackState is the per-family state machine: NotTracked -> Tracking.
type trackState int32

const (
	notTracked trackState = iota
	tracking
)

type familyState struct {
	state      atomic.Int32 // trackState
	fibHandle  string
	sub        linkreg.BackWalkHandle
	adjacency  sync.Map // AdjID -> struct{}, the current reachable set
}

// Tracker implements spec.md §4.3. It is safe for concurrent use: the
// datapath-facing query IsDefaultRouteAdjacency never blocks on the mutex
// used by Retry/onChange.
type Tracker struct {
	source Source
	log    *logging.Logger

	mu      sync.Mutex
	byFamily map[linkreg.Family]*familyState
}

// New builds a Tracker over source, starting both families untracked.
func New(source Source) *Tracker {
	t := &Tracker{
		source:   source,
		log:      logging.WithComponent("defroute"),
		byFamily: make(map[linkreg.Family]*familyState),
	}
	for _, f := range []linkreg.Family{linkreg.V4, linkreg.V6} {
		t.byFamily[f] = &familyState{}
	}
	return t
}

// Retry attempts to find and subscribe to family's default-route FIB entry
// if not already tracking. Called on every Link add (spec.md §4.3's lazy
// initialization).
func (t *Tracker) Retry(family linkreg.Family) {
	fs := t.byFamily[family]
	if trackState(fs.state.Load()) == tracking {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if trackState(fs.state.Load()) == tracking {
		return
	}

	handle, found := t.source.LookupDefaultRoute(family)
	if !found {
		return
	}

	sub, err := t.source.Subscribe(handle, func(adjacencies []linkreg.AdjID) {
		t.replaceSet(fs, adjacencies)
	})
	if err != nil {
		t.log.Warn("default-route subscribe failed, will retry on next link add", "family", family.String(), "error", err)
		return
	}

	fs.fibHandle = handle
	fs.sub = sub
	fs.state.Store(int32(tracking))
	t.log.Info("default-route tracking started", "family", family.String(), "fib_handle", handle)
}

// replaceSet swaps in a new reachable-adjacency set, clearing the previous
// one (spec.md §4.3: "maintain adjacency_set[adj]=1 for those and =0 for
// the previous set").
func (t *Tracker) replaceSet(fs *familyState, adjacencies []linkreg.AdjID) {
	next := make(map[linkreg.AdjID]struct{}, len(adjacencies))
	for _, a := range adjacencies {
		next[a] = struct{}{}
	}
	fs.adjacency.Range(func(k, _ any) bool {
		if _, still := next[k.(linkreg.AdjID)]; !still {
			fs.adjacency.Delete(k)
		}
		return true
	})
	for a := range next {
		fs.adjacency.Store(a, struct{}{})
	}
}

// IsDefaultRouteAdjacency reports whether adj is currently reachable via
// family's default route. O(1), lock-free.
func (t *Tracker) IsDefaultRouteAdjacency(adj linkreg.AdjID, family linkreg.Family) bool {
	fs, ok := t.byFamily[family]
	if !ok {
		return false
	}
	_, present := fs.adjacency.Load(adj)
	return present
}

// Tracking reports whether family has found its default-route FIB entry
// yet, for introspection.
func (t *Tracker) Tracking(family linkreg.Family) bool {
	fs, ok := t.byFamily[family]
	return ok && trackState(fs.state.Load()) == tracking
}
