// Package policy is the Policy Store: CRUD for policy objects pairing an
// ACL id with a link-selection action.
package policy

import "grimm.is/linkpath/internal/linkreg"

// Fallback is the behavior when no label in an action's selection yields a
// usable DPO.
type Fallback int

const (
	FallbackDefaultRoute Fallback = iota
	FallbackDrop
)

func (f Fallback) String() string {
	switch f {
	case FallbackDrop:
		return "drop"
	default:
		return "default_route"
	}
}

// Selection chooses between ordered (first-match) and hash-probed selection
// among groups or among labels within a group.
type Selection int

const (
	Ordered Selection = iota
	Random
)

// Group is an ordered list of labels selected together (spec.md §3).
type Group struct {
	LinkSelection Selection
	Labels        []linkreg.Label

	// Precomputed at construction for branch-free flow-hash indexing
	// (spec.md §9): idx = h & Pow2Mask; if idx > NMinus1 { idx &= NMinus1 }.
	NMinus1  uint32
	Pow2Mask uint32
}

// NewGroup builds a Group and precomputes its index-mapping constants.
func NewGroup(sel Selection, labels []linkreg.Label) Group {
	g := Group{LinkSelection: sel, Labels: append([]linkreg.Label(nil), labels...)}
	g.NMinus1, g.Pow2Mask = indexConstants(len(g.Labels))
	return g
}

// Action is the selection algorithm plus fallback for a Policy (spec.md
// §3/§4.6).
type Action struct {
	Fallback       Fallback
	GroupSelection Selection
	Groups         []Group

	NMinus1  uint32
	Pow2Mask uint32
}

// NewAction builds an Action and precomputes its own and every group's
// index-mapping constants.
func NewAction(fallback Fallback, groupSelection Selection, groups []Group) Action {
	a := Action{Fallback: fallback, GroupSelection: groupSelection, Groups: groups}
	a.NMinus1, a.Pow2Mask = indexConstants(len(a.Groups))
	return a
}

// indexConstants computes (n-1, pow2_mask) for n items, where pow2_mask is
// the smallest of {0x0F, 0xFF} covering n (spec.md §3). n is always ≤ 255
// (at most 255 labels or a small number of declared groups).
func indexConstants(n int) (nMinus1 uint32, mask uint32) {
	if n == 0 {
		return 0, 0x0F
	}
	nMinus1 = uint32(n - 1)
	if n <= 16 {
		mask = 0x0F
	} else {
		mask = 0xFF
	}
	return nMinus1, mask
}

// FlowHashIndex maps a 32-bit flow hash to an index in [0, n) using the
// branch-free rule from spec.md §9.
func FlowHashIndex(hash uint32, nMinus1, pow2Mask uint32) int {
	idx := hash & pow2Mask
	if idx > nMinus1 {
		idx &= nMinus1
	}
	return int(idx)
}

// Counters are the per-policy statistics incremented by the Policy Decision
// Module (spec.md §4.6). They are statistical: incremented without
// synchronization from datapath workers, matching spec.md §5.
type Counters struct {
	Matched      uint64
	Applied      uint64
	Fallback     uint64
	Dropped      uint64
	DefaultRoute uint64
}

// Policy is an (ACL, Action) pair plus its reference count and counters
// (spec.md §3).
type Policy struct {
	PolicyID uint32
	ACLID    uint32
	Action   Action
	RefCount int
	Counters Counters

	valid bool
}

// Valid reports whether the slot currently holds a live Policy.
func (p *Policy) Valid() bool {
	return p != nil && p.valid
}
