// Package decision implements the Policy Decision Module: the single
// hottest routine, selecting a labeled link's DPO for a matched ACL rule.
package decision

import "grimm.is/linkpath/internal/linkreg"

// Packet carries the identifying fields a flow hash is computed over
// (spec.md §4.6: "IP pair, ports, protocol, and their reverse"). Field
// extraction from the wire packet is the Datapath Node's job; this package
// only ever sees the already-extracted tuple.
type Packet struct {
	SrcIP, DstIP     [16]byte // v4-mapped or native v6, caller's choice
	SrcPort, DstPort uint16
	Protocol         uint8
}

// FlowHasher computes the flow hash spec.md §4.6 step 1 describes. It is
// computed once per packet, lazily, and reused across every random probe
// the selection needs.
type FlowHasher interface {
	Hash(pkt Packet) uint32
}

// Result is the Policy Decision Module's return value (spec.md §4.6):
// when UsePolicyDPO is false the caller forwards using the FIB's own DPO.
type Result struct {
	UsePolicyDPO bool
	DPO          linkreg.DPO
}
