// Package attach is the Attachment Store: it binds a Policy to an RX
// interface at a priority and owns the per-interface ACL lookup context.
package attach

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"grimm.is/linkpath/internal/linkreg"
	"grimm.is/linkpath/internal/logging"
	"grimm.is/linkpath/internal/policy"
)

var (
	// ErrDuplicate is returned by Attach when the (policy, interface,
	// family) triple is already bound.
	ErrDuplicate = errors.New("attach: duplicate attachment")
	// ErrNotFound is returned by Detach for an unknown attachment, and by
	// Attach when policy_id does not name a live Policy.
	ErrNotFound = errors.New("attach: not found")
)

// Attachment is the binding of a Policy to an RX interface at a priority
// (spec.md §3). ACLIDCached avoids a Policy Store lookup on the datapath's
// hot path once the attachment list has been published.
type Attachment struct {
	PolicyID      uint32
	ACLIDCached   uint32
	RXInterfaceID uint32
	Family        linkreg.Family
	Priority      int
}

// FeatureArc is the narrow collaborator that turns the engine's datapath
// node on/off for an interface — enabled on first attachment, disabled on
// last detachment (spec.md §4.5).
type FeatureArc interface {
	Enable(rxInterfaceID uint32, family linkreg.Family) error
	Disable(rxInterfaceID uint32, family linkreg.Family) error
}

// ACLContext is the narrow collaborator owning the per-interface ACL
// lookup vector the real (out-of-scope) ACL matcher consumes. Install is
// called with acl ids in attachment-list order, so the matcher's returned
// position can be used directly as an index into that same list
// (spec.md §4.5).
type ACLContext interface {
	Allocate(rxInterfaceID uint32, family linkreg.Family) error
	Release(rxInterfaceID uint32, family linkreg.Family) error
	Install(rxInterfaceID uint32, family linkreg.Family, aclIDs []uint32) error
}

type listKey struct {
	rxInterfaceID uint32
	family        linkreg.Family
}

// Store implements spec.md §4.5. Each per-(interface,family) list is
// published by swapping an atomic pointer, so datapath readers always see
// either the old or the new list, never a partially-built one.
type Store struct {
	mu           sync.Mutex
	lists        map[listKey]*atomic.Pointer[[]Attachment]
	ctxIndex     map[listKey]int
	nextCtxIndex int
	policies     *policy.Store
	aclCtx       ACLContext
	arc          FeatureArc
	log          *logging.Logger
}

// NewStore builds an Attachment Store over the given Policy Store and
// optional ACL-context/feature-arc collaborators (nil is fine in tests
// where those side effects are not under test).
func NewStore(policies *policy.Store, aclCtx ACLContext, arc FeatureArc) *Store {
	return &Store{
		lists:    make(map[listKey]*atomic.Pointer[[]Attachment]),
		ctxIndex: make(map[listKey]int),
		policies: policies,
		aclCtx:   aclCtx,
		arc:      arc,
		log:      logging.WithComponent("attach"),
	}
}

// Attach binds policyID to rxInterfaceID at priority (spec.md §4.5).
func (s *Store) Attach(policyID, rxInterfaceID uint32, family linkreg.Family, priority int) error {
	p, ok := s.policies.Get(policyID)
	if !ok {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := listKey{rxInterfaceID, family}
	ptr, exists := s.lists[key]
	var current []Attachment
	if exists {
		current = *ptr.Load()
		for _, a := range current {
			if a.PolicyID == policyID {
				return ErrDuplicate
			}
		}
	} else {
		ptr = &atomic.Pointer[[]Attachment]{}
		empty := []Attachment{}
		ptr.Store(&empty)
		s.lists[key] = ptr
	}

	next := append(append([]Attachment(nil), current...), Attachment{
		PolicyID:      policyID,
		ACLIDCached:   p.ACLID,
		RXInterfaceID: rxInterfaceID,
		Family:        family,
		Priority:      priority,
	})
	sort.SliceStable(next, func(i, j int) bool { return next[i].Priority < next[j].Priority })

	if len(current) == 0 {
		if s.aclCtx != nil {
			if err := s.aclCtx.Allocate(rxInterfaceID, family); err != nil {
				return err
			}
		}
		if s.arc != nil {
			if err := s.arc.Enable(rxInterfaceID, family); err != nil {
				return err
			}
		}
		s.ctxIndex[key] = s.nextCtxIndex
		s.nextCtxIndex++
	}

	if err := s.install(rxInterfaceID, family, next); err != nil {
		return err
	}

	if err := s.policies.IncRef(policyID); err != nil {
		return err
	}
	ptr.Store(&next)

	s.log.Info("attachment added", "policy_id", policyID, "rx_interface_id", rxInterfaceID, "family", family.String(), "priority", priority)
	return nil
}

// Detach removes the binding of policyID to rxInterfaceID/family
// (spec.md §4.5, mirror image of Attach).
func (s *Store) Detach(policyID, rxInterfaceID uint32, family linkreg.Family) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := listKey{rxInterfaceID, family}
	ptr, exists := s.lists[key]
	if !exists {
		return ErrNotFound
	}
	current := *ptr.Load()

	idx := -1
	for i, a := range current {
		if a.PolicyID == policyID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrNotFound
	}

	next := make([]Attachment, 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)

	if len(next) == 0 {
		if s.arc != nil {
			if err := s.arc.Disable(rxInterfaceID, family); err != nil {
				return err
			}
		}
		if s.aclCtx != nil {
			if err := s.aclCtx.Release(rxInterfaceID, family); err != nil {
				return err
			}
		}
		empty := []Attachment{}
		ptr.Store(&empty)
		delete(s.lists, key)
		delete(s.ctxIndex, key)
	} else {
		if err := s.install(rxInterfaceID, family, next); err != nil {
			return err
		}
		ptr.Store(&next)
	}

	_ = s.policies.DecRef(policyID)
	s.log.Info("attachment removed", "policy_id", policyID, "rx_interface_id", rxInterfaceID, "family", family.String())
	return nil
}

func (s *Store) install(rxInterfaceID uint32, family linkreg.Family, list []Attachment) error {
	if s.aclCtx == nil {
		return nil
	}
	aclIDs := make([]uint32, len(list))
	for i, a := range list {
		aclIDs[i] = a.ACLIDCached
	}
	return s.aclCtx.Install(rxInterfaceID, family, aclIDs)
}

// List returns the current attachment list for (rxInterfaceID, family),
// sorted by ascending priority. It holds s.mu only while looking up the
// list's pointer; the list itself is read with an atomic load, so a
// concurrent Attach/Detach yields either the old or the new list.
func (s *Store) List(rxInterfaceID uint32, family linkreg.Family) []Attachment {
	s.mu.Lock()
	ptr, ok := s.lists[listKey{rxInterfaceID, family}]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return *ptr.Load()
}

// ACLContextIndex returns the per-interface ACL lookup context index
// allocated for (rxInterfaceID, family) on first attachment, for the
// caller to pass to the ACL matcher (spec.md §4.7 steps 2-3). ok is false
// once the last attachment on that interface has been detached and the
// context released.
func (s *Store) ACLContextIndex(rxInterfaceID uint32, family linkreg.Family) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.ctxIndex[listKey{rxInterfaceID, family}]
	return idx, ok
}

// ByACLPosition returns the attachment at position pos in the published
// list for (rxInterfaceID, family) — the index the ACL matcher returns
// directly names a position in this same list (spec.md §4.5).
func (s *Store) ByACLPosition(rxInterfaceID uint32, family linkreg.Family, pos int) (Attachment, bool) {
	list := s.List(rxInterfaceID, family)
	if pos < 0 || pos >= len(list) {
		return Attachment{}, false
	}
	return list[pos], true
}
