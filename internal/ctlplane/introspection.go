package ctlplane

import (
	"grimm.is/linkpath/internal/attach"
	"grimm.is/linkpath/internal/linkreg"
	"grimm.is/linkpath/internal/logging"
	"grimm.is/linkpath/internal/policy"
)

// --- list_links ---

type ListLinksArgs struct{}

type ListLinksReply struct {
	Links []linkreg.Link
}

// ListLinks dumps every registered Link, including its current
// ReachabilityState and Quality, for the introspection TUI.
func (s *Server) ListLinks(_ *ListLinksArgs, reply *ListLinksReply) error {
	reply.Links = s.Links.Links()
	return nil
}

// --- list_policies ---

type ListPoliciesArgs struct{}

type ListPoliciesReply struct {
	Policies []policy.Policy
}

// ListPolicies dumps every Policy along with its match/apply/fallback/
// dropped/default-route counters (spec.md §6 introspection).
func (s *Server) ListPolicies(_ *ListPoliciesArgs, reply *ListPoliciesReply) error {
	reply.Policies = s.Policies.List()
	return nil
}

// --- list_attachments ---

type ListAttachmentsArgs struct {
	RXInterfaceID uint32
	Family        linkreg.Family
}

type ListAttachmentsReply struct {
	Attachments []attach.Attachment
}

// ListAttachments dumps the priority-ordered attachment list for one
// (rx_interface, family) pair.
func (s *Server) ListAttachments(args *ListAttachmentsArgs, reply *ListAttachmentsReply) error {
	reply.Attachments = s.Attachments.List(args.RXInterfaceID, args.Family)
	return nil
}

// --- default_route_state ---

type DefaultRouteStateArgs struct {
	Family linkreg.Family
}

type DefaultRouteStateReply struct {
	Tracking bool
}

// DefaultRouteState reports whether the Default-Route Tracker has an
// active subscription for a family (i.e. has ever observed a 0/0 route).
func (s *Server) DefaultRouteState(args *DefaultRouteStateArgs, reply *DefaultRouteStateReply) error {
	reply.Tracking = s.DefRoute.Tracking(args.Family)
	return nil
}

// --- tail_logs ---

type TailLogsArgs struct {
	Source string // empty means "every source"
	Count  int
}

type TailLogsReply struct {
	Entries []logging.AppLogEntry
}

// TailLogs serves the most recent entries from the engine-wide log ring
// buffer, optionally filtered to one component, for the introspection TUI's
// debug view (mirrors the teacher's RingBuffer-backed log viewer).
func (s *Server) TailLogs(args *TailLogsArgs, reply *TailLogsReply) error {
	buf := logging.GetAppLogBuffer()
	if args.Source != "" {
		entries := buf.GetBySource(args.Source, 0)
		if args.Count > 0 && len(entries) > args.Count {
			entries = entries[len(entries)-args.Count:]
		}
		reply.Entries = entries
		return nil
	}
	reply.Entries = buf.GetLast(args.Count)
	return nil
}
