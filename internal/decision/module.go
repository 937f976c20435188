package decision

import (
	"grimm.is/linkpath/internal/linkreg"
	"grimm.is/linkpath/internal/policy"
)

// Resolver is the narrow Link Registry surface the decision module needs:
// the label->DPO rule (spec.md §4.6).
type Resolver interface {
	Resolve(label linkreg.Label, lb linkreg.LoadBalance, isDefaultRoute bool) (linkreg.DPO, bool)
}

// QualityFilter additionally screens a label against the Quality Tracker's
// service_class_tolerance table (spec.md §4.8). A nil QualityFilter applies
// no filtering.
type QualityFilter interface {
	Allowed(label linkreg.Label) bool
}

// Module is the Policy Decision Module (spec.md §4.6).
type Module struct {
	links  Resolver
	hasher FlowHasher
}

// New builds a Module over the given Link Registry resolver. hasher may be
// nil to use FNVHasher.
func New(links Resolver, hasher FlowHasher) *Module {
	if hasher == nil {
		hasher = FNVHasher{}
	}
	return &Module{links: links, hasher: hasher}
}

// Decide implements spec.md §4.6's contract: given a matched policy, the
// packet, the FIB result, and whether it is a default-route adjacency,
// return the DPO to forward with, or defer to the FIB.
//
// quality may be nil. pol's counters are incremented in place and are
// deliberately not synchronized (spec.md §5: "Counters are incremented by
// workers without synchronization; they are statistical"). The
// default_route counter is not touched here: spec.md §4.6 counts it only
// when the default-route override action actually replaced the policy's
// own action, which the caller (datapath.Node.decide) is in a position to
// know and this module is not.
func (m *Module) Decide(store *policy.Store, pol *policy.Policy, pkt Packet, fib linkreg.LoadBalance, isDefaultRoute bool, quality QualityFilter) Result {
	store.RecordMatched(pol)

	_, dpo, ok := m.selectLabel(pol.Action, pkt, fib, isDefaultRoute, quality)
	if ok {
		store.RecordApplied(pol)
		return Result{UsePolicyDPO: true, DPO: dpo}
	}

	if pol.Action.Fallback == policy.FallbackDrop {
		store.RecordDropped(pol)
		return Result{UsePolicyDPO: true, DPO: linkreg.DPO{NextNode: "drop", AdjID: linkreg.InvalidAdj}}
	}

	store.RecordFallback(pol)
	return Result{UsePolicyDPO: false}
}

// selectLabel runs the group/label selection algorithm of spec.md §4.6.
func (m *Module) selectLabel(action policy.Action, pkt Packet, fib linkreg.LoadBalance, isDefaultRoute bool, quality QualityFilter) (linkreg.Label, linkreg.DPO, bool) {
	groups := action.Groups
	if len(groups) == 0 {
		return linkreg.LabelInvalid, linkreg.DPO{}, false
	}

	var hash uint32
	var hashed bool
	lazyHash := func() uint32 {
		if !hashed {
			hash = m.hasher.Hash(pkt)
			hashed = true
		}
		return hash
	}

	if len(groups) > 1 && action.GroupSelection == policy.Random {
		idx := policy.FlowHashIndex(lazyHash(), action.NMinus1, action.Pow2Mask)
		if label, dpo, ok := m.resolveGroup(groups[idx], lazyHash, fib, isDefaultRoute, quality); ok {
			return label, dpo, true
		}
	}

	// Ordered scan of all groups: this is the sole selection path when
	// group_selection == ORDERED, and the fallback path after a random
	// group probe miss (spec.md §4.6 step 5).
	for _, g := range groups {
		if label, dpo, ok := m.resolveGroup(g, lazyHash, fib, isDefaultRoute, quality); ok {
			return label, dpo, true
		}
	}
	return linkreg.LabelInvalid, linkreg.DPO{}, false
}

// resolveGroup applies spec.md §4.6 steps 3-4 within a single group: one
// hash-picked probe when link_selection == RANDOM, then an ordered scan of
// the group's labels.
func (m *Module) resolveGroup(g policy.Group, lazyHash func() uint32, fib linkreg.LoadBalance, isDefaultRoute bool, quality QualityFilter) (linkreg.Label, linkreg.DPO, bool) {
	if len(g.Labels) == 0 {
		return linkreg.LabelInvalid, linkreg.DPO{}, false
	}

	if len(g.Labels) > 1 && g.LinkSelection == policy.Random {
		idx := policy.FlowHashIndex(lazyHash(), g.NMinus1, g.Pow2Mask)
		label := g.Labels[idx]
		if dpo, ok := m.tryLabel(label, fib, isDefaultRoute, quality); ok {
			return label, dpo, true
		}
	}

	for _, label := range g.Labels {
		if dpo, ok := m.tryLabel(label, fib, isDefaultRoute, quality); ok {
			return label, dpo, true
		}
	}
	return linkreg.LabelInvalid, linkreg.DPO{}, false
}

func (m *Module) tryLabel(label linkreg.Label, fib linkreg.LoadBalance, isDefaultRoute bool, quality QualityFilter) (linkreg.DPO, bool) {
	if quality != nil && !quality.Allowed(label) {
		return linkreg.DPO{}, false
	}
	return m.links.Resolve(label, fib, isDefaultRoute)
}
