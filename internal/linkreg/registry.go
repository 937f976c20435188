package linkreg

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/linkpath/internal/logging"
)

// Registry is the Link Registry (spec.md §4.2). Control-plane mutations
// (LinkAdd/LinkDel, back-walk callbacks) take reg.mu; the datapath reads
// admin/reachable maps through atomic word-sized loads. Resolve's
// default-route path is the exception: it reads the label index under reg.mu.
type Registry struct {
	mu sync.Mutex

	links      []*Link // indexed by interface_id, grown on demand; append-only slots
	labelIndex map[Label]uint32

	adminMap     []atomic.Int32
	reachableMap []atomic.Int32

	registrar BackWalkRegistrar
	metrics   *counters
	log       *logging.Logger
}

// New builds a Link Registry bounded to MaxAdjacencies adjacency slots.
// reg may be nil to skip Prometheus registration (e.g. in tests).
func New(registrar BackWalkRegistrar, reg prometheus.Registerer) *Registry {
	r := &Registry{
		labelIndex:   make(map[Label]uint32),
		adminMap:     make([]atomic.Int32, MaxAdjacencies),
		reachableMap: make([]atomic.Int32, MaxAdjacencies),
		registrar:    registrar,
		metrics:      newCounters(reg),
		log:          logging.WithComponent("linkreg"),
	}
	for i := range r.adminMap {
		r.adminMap[i].Store(int32(LabelInvalid))
		r.reachableMap[i].Store(int32(LabelInvalid))
	}
	return r
}

func (r *Registry) getLink(ifIndex uint32) *Link {
	if int(ifIndex) >= len(r.links) {
		return nil
	}
	return r.links[ifIndex]
}

func (r *Registry) setLink(ifIndex uint32, l *Link) {
	for int(ifIndex) >= len(r.links) {
		r.links = append(r.links, nil)
	}
	r.links[ifIndex] = l
}

// LinkAdd registers interface_id as a transmit link labeled label, resolving
// next_hop through the routing subsystem (spec.md §4.2).
func (r *Registry) LinkAdd(ifIndex uint32, label Label, nh NextHop) error {
	if label > MaxLabel {
		return ErrLabelOutOfRange
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.getLink(ifIndex); existing.Valid() {
		return ErrInterfaceExists
	}

	link := &Link{
		InterfaceID: ifIndex,
		Label:       label,
		Family:      nh.Family,
		NextHop:     nh,
		State:       StatePending,
		Descriptor:  DPO{AdjID: InvalidAdj},
		valid:       true,
	}

	if r.registrar != nil {
		handle, initial, err := r.registrar.Subscribe(nh, func(ev BackWalkEvent) {
			r.onBackWalk(ifIndex, ev)
		})
		if err != nil {
			r.log.Warn("link subscribe failed, link stays pending", "interface_id", ifIndex, "error", err)
		} else {
			if err := r.applyEvent(link, initial); err != nil {
				handle.Unsubscribe()
				return fmt.Errorf("linkreg: link_add interface %d: %w", ifIndex, err)
			}
			link.sub = handle
		}
	}

	r.setLink(ifIndex, link)
	r.labelIndex[label] = ifIndex
	r.publishMaps(link)

	r.log.Info("link added", "interface_id", ifIndex, "label", label, "family", nh.Family.String())
	return nil
}

// LinkDel removes interface_id's Link, idempotent on an unknown interface
// (spec.md §4.2). The valid sentinel flips before any downstream mutation.
func (r *Registry) LinkDel(ifIndex uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	link := r.getLink(ifIndex)
	if !link.Valid() {
		return nil
	}

	link.valid = false // invalidate before clearing maps (spec.md §9 ordering)

	if adj := link.Descriptor.AdjID; adj != InvalidAdj && int(adj) < len(r.adminMap) {
		r.reachableMap[adj].Store(int32(LabelInvalid))
		r.adminMap[adj].Store(int32(LabelInvalid))
	}

	if link.sub != nil {
		link.sub.Unsubscribe()
	}
	delete(r.labelIndex, link.Label)
	r.setLink(ifIndex, nil)

	r.log.Info("link deleted", "interface_id", ifIndex)
	return nil
}

// QualitySet applies a Quality Tracker probe result (spec.md §4.8). loss ==
// 100 clears the reachable_map entry only; admin_map is left untouched
// (Open Question decision, SPEC_FULL.md §5.2).
func (r *Registry) QualitySet(ifIndex uint32, q Quality) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	link := r.getLink(ifIndex)
	if !link.Valid() {
		return fmt.Errorf("linkreg: quality_set on unknown interface %d", ifIndex)
	}
	link.Quality = q

	adj := link.Descriptor.AdjID
	if adj == InvalidAdj || int(adj) >= len(r.reachableMap) {
		return nil
	}
	if q.Loss >= 100 {
		r.reachableMap[adj].Store(int32(LabelInvalid))
	} else if link.State == StateReachable {
		r.reachableMap[adj].Store(int32(link.Label))
	}
	return nil
}

// onBackWalk is invoked by the registrar's callback on every routing change
// affecting the Link at ifIndex.
func (r *Registry) onBackWalk(ifIndex uint32, ev BackWalkEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link := r.getLink(ifIndex)
	if !link.Valid() {
		return
	}
	if err := r.applyEvent(link, ev); err != nil {
		r.log.Warn("back-walk adjacency out of bounds", "interface_id", ifIndex, "error", err)
		return
	}
	r.publishMaps(link)
}

// applyEvent updates a Link's descriptor/state from a back-walk event and
// must be called with r.mu held.
func (r *Registry) applyEvent(link *Link, ev BackWalkEvent) error {
	if ev.Resolved {
		if int(ev.AdjID) >= MaxAdjacencies {
			return ErrAdjacencySpaceExceeded
		}
		link.Descriptor = DPO{NextNode: ev.NextNode, AdjID: ev.AdjID}
		link.State = StateReachable
	} else {
		if link.State == StatePending || link.State == StateAbsent {
			link.State = StatePending
		} else {
			link.State = StateUnreachable
		}
	}
	return nil
}

// publishMaps writes the link's current label into admin_map
// unconditionally and into reachable_map iff the link is reachable. Must be
// called with r.mu held; the stores themselves are single atomic words, so
// the datapath never observes a torn read.
func (r *Registry) publishMaps(link *Link) {
	adj := link.Descriptor.AdjID
	if adj == InvalidAdj || int(adj) >= len(r.adminMap) {
		return
	}
	r.adminMap[adj].Store(int32(link.Label))
	if link.State == StateReachable {
		r.reachableMap[adj].Store(int32(link.Label))
	} else {
		r.reachableMap[adj].Store(int32(LabelInvalid))
	}
}

func (r *Registry) adminLabel(adj AdjID) Label {
	if adj == InvalidAdj || int(adj) >= len(r.adminMap) {
		return LabelInvalid
	}
	return Label(r.adminMap[adj].Load())
}

func (r *Registry) reachableLabel(adj AdjID) Label {
	if adj == InvalidAdj || int(adj) >= len(r.reachableMap) {
		return LabelInvalid
	}
	return Label(r.reachableMap[adj].Load())
}

// IsLabeledOrDefaultRoute reports whether the datapath should ever consider
// a packet with this FIB result for policy routing (spec.md §4.2).
func (r *Registry) IsLabeledOrDefaultRoute(lb LoadBalance, isDefaultRoute bool) bool {
	if isDefaultRoute {
		return true
	}
	for _, b := range lb.Buckets {
		if r.adminLabel(b.AdjID) != LabelInvalid {
			return true
		}
	}
	return false
}

// Resolve implements the label->DPO rule (spec.md §4.6). When
// isDefaultRoute is true it bypasses intersection with lb and returns the
// first reachable link bearing label directly.
func (r *Registry) Resolve(label Label, lb LoadBalance, isDefaultRoute bool) (DPO, bool) {
	var dpo DPO
	var ok bool

	if isDefaultRoute {
		dpo, ok = r.resolveByLabelDirect(label)
	} else {
		dpo, ok = r.resolveAgainstBuckets(label, lb)
	}

	r.bumpCounters(label, lb, isDefaultRoute, ok)
	return dpo, ok
}

func (r *Registry) resolveByLabelDirect(label Label) (DPO, bool) {
	r.mu.Lock()
	ifIndex, present := r.labelIndex[label]
	var link *Link
	if present {
		link = r.getLink(ifIndex)
	}
	r.mu.Unlock()

	if !link.Valid() || link.State != StateReachable {
		return DPO{}, false
	}
	return link.Descriptor, true
}

func (r *Registry) resolveAgainstBuckets(label Label, lb LoadBalance) (DPO, bool) {
	for _, b := range lb.Buckets {
		if r.reachableLabel(b.AdjID) == label {
			return b, true
		}
	}
	return DPO{}, false
}

func (r *Registry) bumpCounters(label Label, lb LoadBalance, isDefaultRoute, enforcedHit bool) {
	if r.metrics == nil {
		return
	}
	// known: the label is administratively present for this lookup (the
	// label index on the default-route path, admin_map for the buckets).
	known := enforcedHit
	if !known && isDefaultRoute {
		r.mu.Lock()
		_, known = r.labelIndex[label]
		r.mu.Unlock()
	}
	for i := 0; !known && !isDefaultRoute && i < len(lb.Buckets); i++ {
		known = r.adminLabel(lb.Buckets[i].AdjID) == label
	}
	lbl := strconv.Itoa(int(label))
	if known {
		r.metrics.hits.WithLabelValues(lbl).Inc()
	} else {
		r.metrics.misses.WithLabelValues(lbl).Inc()
	}
	if enforcedHit {
		r.metrics.enforcedHits.WithLabelValues(lbl).Inc()
	} else if known {
		r.metrics.enforcedMiss.WithLabelValues(lbl).Inc()
	}
}

// LinkByInterface returns a snapshot copy of the Link registered for
// ifIndex, for introspection.
func (r *Registry) LinkByInterface(ifIndex uint32) (Link, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link := r.getLink(ifIndex)
	if !link.Valid() {
		return Link{}, false
	}
	return *link, true
}

// LinkByLabel returns a snapshot of the Link currently assigned label, for
// collaborators (e.g. the Quality Tracker) that need a label's current
// quality counters rather than its resolved DPO.
func (r *Registry) LinkByLabel(label Label) (Link, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ifIndex, ok := r.labelIndex[label]
	if !ok {
		return Link{}, false
	}
	link := r.getLink(ifIndex)
	if !link.Valid() {
		return Link{}, false
	}
	return *link, true
}

// Links returns a snapshot of all live links, for introspection.
func (r *Registry) Links() []Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Link, 0, len(r.links))
	for _, l := range r.links {
		if l.Valid() {
			out = append(out, *l)
		}
	}
	return out
}
