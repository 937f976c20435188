package policy

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/linkpath/internal/logging"
)

var (
	// ErrExists is returned by Add when policy_id is already registered.
	ErrExists = errors.New("policy: already exists")
	// ErrNotFound is returned by Delete, IncRef and DecRef for an unknown policy_id.
	ErrNotFound = errors.New("policy: not found")
	// ErrInUse is returned by Delete when ref_count > 0.
	ErrInUse = errors.New("policy: in use")
)

// Store is the Policy Store (spec.md §4.4): a stable-index pool of
// Policies plus an optional process-scoped default-route override action.
type Store struct {
	mu       sync.Mutex
	byID     map[uint32]*Policy
	counters *storeMetrics
	log      *logging.Logger

	defaultRouteMu     sync.RWMutex
	defaultRouteAction *Action
}

// NewStore builds an empty Policy Store. reg may be nil to skip Prometheus
// registration.
func NewStore(reg prometheus.Registerer) *Store {
	return &Store{
		byID:     make(map[uint32]*Policy),
		counters: newStoreMetrics(reg),
		log:      logging.WithComponent("policy"),
	}
}

// Add registers a new Policy (spec.md §4.4). Action's n_minus_1/pow2_mask
// are expected to already be precomputed (via NewAction/NewGroup).
func (s *Store) Add(policyID, aclID uint32, action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[policyID]; exists {
		return ErrExists
	}
	s.byID[policyID] = &Policy{
		PolicyID: policyID,
		ACLID:    aclID,
		Action:   action,
		valid:    true,
	}
	s.log.Info("policy added", "policy_id", policyID, "acl_id", aclID)
	return nil
}

// Delete removes a Policy, failing with ErrInUse if any Attachment still
// references it (spec.md §4.4).
func (s *Store) Delete(policyID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[policyID]
	if !ok {
		return ErrNotFound
	}
	if p.RefCount > 0 {
		return ErrInUse
	}
	p.valid = false
	delete(s.byID, policyID)
	s.log.Info("policy deleted", "policy_id", policyID)
	return nil
}

// Get returns the live Policy for policyID, for datapath/introspection use.
func (s *Store) Get(policyID uint32) (*Policy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[policyID]
	if !ok || !p.valid {
		return nil, false
	}
	return p, true
}

// IncRef increments a Policy's ref_count; called by the Attachment Store on
// attach.
func (s *Store) IncRef(policyID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[policyID]
	if !ok {
		return ErrNotFound
	}
	p.RefCount++
	return nil
}

// DecRef decrements a Policy's ref_count; called by the Attachment Store on
// detach. Never goes below zero.
func (s *Store) DecRef(policyID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[policyID]
	if !ok {
		return ErrNotFound
	}
	if p.RefCount > 0 {
		p.RefCount--
	}
	return nil
}

// SetDefaultRouteAction installs the process-scoped override action
// (spec.md §4.4).
func (s *Store) SetDefaultRouteAction(a Action) {
	s.defaultRouteMu.Lock()
	defer s.defaultRouteMu.Unlock()
	s.defaultRouteAction = &a
}

// ClearDefaultRouteAction removes the override, if any.
func (s *Store) ClearDefaultRouteAction() {
	s.defaultRouteMu.Lock()
	defer s.defaultRouteMu.Unlock()
	s.defaultRouteAction = nil
}

// DefaultRouteAction returns the current override action, if active.
func (s *Store) DefaultRouteAction() (Action, bool) {
	s.defaultRouteMu.RLock()
	defer s.defaultRouteMu.RUnlock()
	if s.defaultRouteAction == nil {
		return Action{}, false
	}
	return *s.defaultRouteAction, true
}

// List returns a snapshot of all live policies, for introspection.
func (s *Store) List() []Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Policy, 0, len(s.byID))
	for _, p := range s.byID {
		if p.valid {
			out = append(out, *p)
		}
	}
	return out
}

type storeMetrics struct {
	matched      *prometheus.CounterVec
	applied      *prometheus.CounterVec
	fallback     *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	defaultRoute *prometheus.CounterVec
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	m := &storeMetrics{
		matched:      counterVec(reg, "matched_total", "Packets matched against a policy's ACL."),
		applied:      counterVec(reg, "applied_total", "Packets forwarded on a policy-selected labeled link."),
		fallback:     counterVec(reg, "fallback_total", "Packets that fell back to FIB forwarding."),
		dropped:      counterVec(reg, "dropped_total", "Packets dropped by a policy's fallback=drop action."),
		defaultRoute: counterVec(reg, "default_route_total", "Packets where the default-route override action engaged."),
	}
	return m
}

func counterVec(reg prometheus.Registerer, name, help string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linkpath",
		Subsystem: "policy",
		Name:      name,
		Help:      help,
	}, []string{"policy_id"})
	if reg != nil {
		reg.MustRegister(cv)
	}
	return cv
}

// RecordMatched bumps Matched on the in-memory Policy and its Prometheus
// counter. Called from the datapath without synchronization (spec.md §5);
// the struct field is the statistic of record, Prometheus mirrors it.
func (s *Store) RecordMatched(p *Policy) {
	p.Counters.Matched++
	s.counters.matched.WithLabelValues(idString(p.PolicyID)).Inc()
}

func (s *Store) RecordApplied(p *Policy) {
	p.Counters.Applied++
	s.counters.applied.WithLabelValues(idString(p.PolicyID)).Inc()
}

func (s *Store) RecordFallback(p *Policy) {
	p.Counters.Fallback++
	s.counters.fallback.WithLabelValues(idString(p.PolicyID)).Inc()
}

func (s *Store) RecordDropped(p *Policy) {
	p.Counters.Dropped++
	s.counters.dropped.WithLabelValues(idString(p.PolicyID)).Inc()
}

func (s *Store) RecordDefaultRoute(p *Policy) {
	p.Counters.DefaultRoute++
	s.counters.defaultRoute.WithLabelValues(idString(p.PolicyID)).Inc()
}
