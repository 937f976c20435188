// Package linkreg is the Link Registry: it owns the authoritative mapping
// from user labels to transmit interfaces and the direct-addressed
// adjacency->label maps the datapath reads without locks.
package linkreg

import (
	"errors"
	"net/netip"
)

// Family distinguishes IPv4 from IPv6 links. Mixed-family tunnels under one
// label are a non-goal; a Link is always single-family.
type Family uint8

const (
	V4 Family = iota
	V6
)

func (f Family) String() string {
	if f == V6 {
		return "v6"
	}
	return "v4"
}

// Label is a small integer assigned by the operator to a transmit link.
// 255 is reserved as the "no label" sentinel.
type Label uint8

const (
	// LabelInvalid marks an adjacency slot with no associated label.
	LabelInvalid Label = 255
	// MaxLabel is the largest assignable label value.
	MaxLabel Label = 254
)

// AdjID identifies a routing-subsystem adjacency. InvalidAdj marks a Link
// whose forwarding descriptor has not resolved to a concrete adjacency.
type AdjID uint32

// InvalidAdj is the sentinel adjacency id for an unresolved descriptor.
const InvalidAdj AdjID = 0xFFFFFFFF

// MaxAdjacencies bounds the direct-addressed admin/reachable maps. Exceeding
// it at registration time is a hard error (design note, spec.md §9).
const MaxAdjacencies = 65536

// DPO (Destination/Dispatch Point Object) pairs a graph node name with the
// adjacency the packet should be forwarded through.
type DPO struct {
	NextNode string
	AdjID    AdjID
}

// Valid reports whether d carries a resolved adjacency.
func (d DPO) Valid() bool {
	return d.AdjID != InvalidAdj
}

// LoadBalance is the FIB lookup result consumed by the datapath: one or more
// candidate DPOs (ECMP buckets) plus the hash configuration the FIB would
// use to pick among them on the plain-routing path.
type LoadBalance struct {
	Buckets    []DPO
	HashConfig uint32
}

// NBuckets is the number of ECMP buckets in the load-balance object.
func (lb LoadBalance) NBuckets() int { return len(lb.Buckets) }

// ReachabilityState is the Link state machine (spec.md §4.8):
// Absent -> Pending -> Reachable <-> Unreachable -> Absent.
type ReachabilityState int

const (
	StateAbsent ReachabilityState = iota
	StatePending
	StateReachable
	StateUnreachable
)

func (s ReachabilityState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReachable:
		return "reachable"
	case StateUnreachable:
		return "unreachable"
	default:
		return "absent"
	}
}

// NextHop is the path the Link resolves through; Gateway may be the zero
// value for a point-to-point/tunnel interface with no next-hop address.
type NextHop struct {
	Family  Family
	Gateway netip.Addr
	IfIndex int
	// Netns, when non-empty, names the network namespace the transmit
	// interface lives in (per-VRF adjacency space isolation).
	Netns string
}

// Quality holds the last probe results reported for a Link by the Quality
// Tracker. Loss is a percentage in [0, 100].
type Quality struct {
	Loss   float64
	Delay  float64
	Jitter float64
}

// Link is the engine's record for one labeled transmit interface.
type Link struct {
	InterfaceID uint32
	Label       Label
	Family      Family
	NextHop     NextHop
	Descriptor  DPO
	State       ReachabilityState
	Quality     Quality

	valid bool
	sub   BackWalkHandle
}

// Valid reports whether the slot currently holds a live Link. A deleted
// Link's slot stays allocated (stable indices) but valid flips to false
// before any other mutation, per the deletion ordering in spec.md §9.
func (l *Link) Valid() bool {
	return l != nil && l.valid
}

var (
	// ErrLabelOutOfRange is returned by LinkAdd when label > MaxLabel.
	ErrLabelOutOfRange = errors.New("linkreg: label out of range")
	// ErrInterfaceExists is returned by LinkAdd when interface_id already
	// has a Link.
	ErrInterfaceExists = errors.New("linkreg: interface already registered")
	// ErrAdjacencySpaceExceeded is a hard error raised at registration time
	// if an adjacency id would exceed MaxAdjacencies.
	ErrAdjacencySpaceExceeded = errors.New("linkreg: adjacency id exceeds bounded adjacency space")
)

// BackWalkEvent is delivered to a Link's subscription on every routing
// back-walk affecting its path-list.
type BackWalkEvent struct {
	// Resolved is true once the path-list has a usable adjacency (ARP/ND
	// resolved), false while incomplete.
	Resolved bool
	AdjID    AdjID
	NextNode string
}

// BackWalkHandle is the registration handle returned by Subscribe. It
// replaces the original design's intrusive embedded graph node (design
// note, spec.md §9): the Link holds only an opaque handle it can release.
type BackWalkHandle interface {
	Unsubscribe()
}

// BackWalkRegistrar is the narrow interface the Link Registry consumes from
// the routing subsystem: subscribe a next-hop for back-walk notifications,
// get an initial resolution synchronously, and later be called back on
// changes. Link Registry dispatches each event to the right Link purely by
// the closure it registered, never by an intrusive pointer.
type BackWalkRegistrar interface {
	Subscribe(nh NextHop, onChange func(BackWalkEvent)) (BackWalkHandle, BackWalkEvent, error)
}
