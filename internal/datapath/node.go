package datapath

import (
	"net/netip"

	"grimm.is/linkpath/internal/attach"
	"grimm.is/linkpath/internal/decision"
	"grimm.is/linkpath/internal/defroute"
	"grimm.is/linkpath/internal/linkreg"
	"grimm.is/linkpath/internal/localaddr"
	"grimm.is/linkpath/internal/policy"
)

// Node is the Datapath Node (spec.md §4.7). It never blocks and never
// returns an error: every failure mode is soft and converts to a normal
// FIB forward or a drop, per spec.md §4.8's failure semantics.
type Node struct {
	fib        FIB
	acl        ACLMatcher
	local      *localaddr.Filter
	attachment *attach.Store
	policies   *policy.Store
	links      *linkreg.Registry
	defRoute   *defroute.Tracker
	decider    *decision.Module
	quality    decision.QualityFilter // optional, may be nil

	trace *Trace // optional ring-buffered per-packet trace, nil disables it
}

// Config collects Node's collaborators. Quality may be nil (the Quality
// Tracker is optional per spec.md §2).
type Config struct {
	FIB        FIB
	ACL        ACLMatcher
	Local      *localaddr.Filter
	Attachment *attach.Store
	Policies   *policy.Store
	Links      *linkreg.Registry
	DefRoute   *defroute.Tracker
	Decider    *decision.Module
	Quality    decision.QualityFilter
	Trace      *Trace
}

// New builds a Datapath Node.
func New(cfg Config) *Node {
	return &Node{
		fib:        cfg.FIB,
		acl:        cfg.ACL,
		local:      cfg.Local,
		attachment: cfg.Attachment,
		policies:   cfg.Policies,
		links:      cfg.Links,
		defRoute:   cfg.DefRoute,
		decider:    cfg.Decider,
		quality:    cfg.Quality,
		trace:      cfg.Trace,
	}
}

// Process runs the per-packet pipeline of spec.md §4.7 for one packet
// received on rxInterfaceID. The contract is strictly per-packet; batching
// into frames is the caller's (the graph runner's) concern.
func (n *Node) Process(rxInterfaceID uint32, family linkreg.Family, raw RawPacket) Verdict {
	tuple := n.acl.FillFiveTuple(raw, family)

	if n.local != nil && n.isLocalDestination(tuple, family) {
		v := Verdict{NextNode: nodeLocalDeliver, AdjID: linkreg.InvalidAdj}
		n.traceIt(rxInterfaceID, tuple, v, "local-bypass")
		return v
	}

	lb := n.fib.Lookup(family, tuple)
	isDefaultRoute := n.isDefaultRoute(lb, family)

	if n.links.IsLabeledOrDefaultRoute(lb, isDefaultRoute) {
		if list := n.attachment.List(rxInterfaceID, family); len(list) > 0 {
			if ctxIdx, ok := n.attachment.ACLContextIndex(rxInterfaceID, family); ok {
				if pos, ok := n.acl.MatchFiveTuple(ACLContext(ctxIdx), tuple); ok {
					if a, ok := n.attachment.ByACLPosition(rxInterfaceID, family, pos); ok {
						if v, handled := n.decide(a, tuple, lb, isDefaultRoute, rxInterfaceID); handled {
							return v
						}
					}
				}
			}
		}
	}

	v := n.forwardByFIB(lb, tuple)
	n.traceIt(rxInterfaceID, tuple, v, "fib")
	return v
}

// decide invokes the Policy Decision Module for the attachment's policy and
// returns (verdict, true) when the policy dictates the forwarding
// decision; (zero, false) when the caller should fall through to plain FIB
// forwarding (use_policy_dpo == false, spec.md §4.6).
func (n *Node) decide(a attach.Attachment, tuple FiveTuple, lb linkreg.LoadBalance, isDefaultRoute bool, rxInterfaceID uint32) (Verdict, bool) {
	pol, ok := n.policies.Get(a.PolicyID)
	if !ok {
		return Verdict{}, false
	}

	// default_route_action overrides the per-policy action when the FIB
	// result is a default-route adjacency and an override is installed
	// (spec.md §4.4). The default_route counter is bumped here, on the
	// policy actually on record in the store, only when the override was
	// engaged — not for every default-route packet (spec.md §4.6).
	effective := pol
	if isDefaultRoute {
		if override, active := n.policies.DefaultRouteAction(); active {
			n.policies.RecordDefaultRoute(pol)
			shadow := *pol
			shadow.Action = override
			effective = &shadow
		}
	}

	res := n.decider.Decide(n.policies, effective, tuple, lb, isDefaultRoute, n.quality)
	if effective != pol {
		// Decide counted on the shadow copy; carry its counters back to the
		// policy on record so they are not lost with the copy.
		pol.Counters = effective.Counters
	}
	if !res.UsePolicyDPO {
		return Verdict{}, false
	}
	v := Verdict{NextNode: res.DPO.NextNode, AdjID: res.DPO.AdjID}
	n.traceIt(rxInterfaceID, tuple, v, "policy")
	return v, true
}

// isDefaultRoute implements the Open Question #1 decision (SPEC_FULL.md
// §5.1): only the FIB result's first bucket is checked against the
// Default-Route Tracker, not "any bucket".
func (n *Node) isDefaultRoute(lb linkreg.LoadBalance, family linkreg.Family) bool {
	if len(lb.Buckets) == 0 {
		return false
	}
	return n.defRoute.IsDefaultRouteAdjacency(lb.Buckets[0].AdjID, family)
}

// forwardByFIB implements the plain-routing path of spec.md §4.7 step 4b:
// hash the 5-tuple across ECMP buckets, or use the single bucket.
func (n *Node) forwardByFIB(lb linkreg.LoadBalance, tuple FiveTuple) Verdict {
	if len(lb.Buckets) == 0 {
		return Verdict{NextNode: nodeDrop, AdjID: linkreg.InvalidAdj}
	}
	if len(lb.Buckets) == 1 {
		b := lb.Buckets[0]
		return Verdict{NextNode: b.NextNode, AdjID: b.AdjID}
	}
	idx := n.fib.HashBucket(lb, tuple)
	b := lb.Buckets[idx]
	return Verdict{NextNode: b.NextNode, AdjID: b.AdjID}
}

func (n *Node) isLocalDestination(tuple FiveTuple, family linkreg.Family) bool {
	addr, ok := addrFromTuple(tuple.DstIP, family)
	if !ok {
		return false
	}
	return n.local.Contains(addr)
}

func addrFromTuple(raw [16]byte, family linkreg.Family) (netip.Addr, bool) {
	if family == linkreg.V4 {
		var b [4]byte
		copy(b[:], raw[12:16])
		return netip.AddrFrom4(b), true
	}
	return netip.AddrFrom16(raw), true
}

func (n *Node) traceIt(rxInterfaceID uint32, tuple FiveTuple, v Verdict, reason string) {
	if n.trace == nil {
		return
	}
	n.trace.Record(TraceEntry{
		RXInterfaceID: rxInterfaceID,
		NextNode:      v.NextNode,
		AdjID:         v.AdjID,
		Reason:        reason,
		Protocol:      tuple.Protocol,
	})
}
