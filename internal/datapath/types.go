// Package datapath is the Datapath Node: the per-packet pipeline that
// composes the FIB, the ACL matcher, and the Policy Decision Module.
package datapath

import (
	"grimm.is/linkpath/internal/decision"
	"grimm.is/linkpath/internal/linkreg"
)

// FiveTuple is the packet's identifying fields, as filled by the ACL
// matcher's fill-5-tuple step (spec.md §6). It doubles as the decision
// module's Packet shape since both need the same fields.
type FiveTuple = decision.Packet

// FIB is the narrow out-of-scope collaborator providing longest-prefix-
// match lookup and the plain-routing hash-bucket pick (spec.md §6).
type FIB interface {
	Lookup(family linkreg.Family, tuple FiveTuple) linkreg.LoadBalance
	// HashBucket picks the bucket a plain (non-policy) forwarding decision
	// would use for an n-bucket load balance object, per the FIB's own
	// hash config.
	HashBucket(lb linkreg.LoadBalance, tuple FiveTuple) int
}

// ACLContext identifies the per-(interface,family) ACL lookup context
// allocated by the Attachment Store (spec.md §4.5).
type ACLContext int

// ACLMatcher is the narrow out-of-scope collaborator doing 5-tuple
// classification (spec.md §1, §6).
type ACLMatcher interface {
	FillFiveTuple(raw RawPacket, family linkreg.Family) FiveTuple
	// MatchFiveTuple returns the position of the first matching rule in
	// the attachment-list vector installed for ctx, or ok == false on no
	// match.
	MatchFiveTuple(ctx ACLContext, tuple FiveTuple) (pos int, ok bool)
}

// RawPacket is the opaque packet handle the graph dispatcher passes in;
// the engine never interprets its bytes directly except through ACLMatcher
// and whatever the caller's own local-address extraction needs.
type RawPacket struct {
	Data []byte
}

// Verdict is what the Datapath Node hands back to the graph dispatcher:
// the next node to run and the adjacency to forward through.
type Verdict struct {
	NextNode string
	AdjID    linkreg.AdjID
}

const (
	nodeLocalDeliver = "ip4-local"
	nodeDrop         = "drop"
)
