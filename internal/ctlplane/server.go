package ctlplane

import (
	"errors"

	"github.com/google/uuid"

	"grimm.is/linkpath/internal/attach"
	"grimm.is/linkpath/internal/defroute"
	"grimm.is/linkpath/internal/linkreg"
	"grimm.is/linkpath/internal/logging"
	"grimm.is/linkpath/internal/policy"
	"grimm.is/linkpath/internal/quality"
)

// Server exposes the engine's control-plane operations over net/rpc,
// mirroring the teacher's ctlplane.Server composition of sub-managers
// (internal/ctlplane/server.go) generalized from firewall/NAT managers to
// this engine's own components.
type Server struct {
	Links       *linkreg.Registry
	DefRoute    *defroute.Tracker
	Policies    *policy.Store
	Attachments *attach.Store
	Quality     *quality.Tracker // optional, may be nil

	hub *NotificationHub
	log *logging.Logger
}

// NewServer builds a Server. hub may be nil to disable notifications.
func NewServer(links *linkreg.Registry, defRoute *defroute.Tracker, policies *policy.Store, attachments *attach.Store, qual *quality.Tracker, hub *NotificationHub) *Server {
	return &Server{
		Links:       links,
		DefRoute:    defRoute,
		Policies:    policies,
		Attachments: attachments,
		Quality:     qual,
		hub:         hub,
		log:         logging.WithComponent("ctlplane"),
	}
}

func (s *Server) correlate() string {
	return uuid.NewString()
}

// --- link_add / link_del ---

type LinkAddArgs struct {
	InterfaceID uint32
	Label       linkreg.Label
	NextHop     linkreg.NextHop
}

type LinkAddReply struct {
	Code Code
}

// LinkAdd is the net/rpc-exposed link_add operation (spec.md §6).
func (s *Server) LinkAdd(args *LinkAddArgs, reply *LinkAddReply) error {
	cid := s.correlate()
	err := s.Links.LinkAdd(args.InterfaceID, args.Label, args.NextHop)
	reply.Code = codeFromLinkErr(err)
	s.log.Info("rpc link_add", "correlation_id", cid, "interface_id", args.InterfaceID, "code", reply.Code.String())
	logging.LinkRegistryLog("info", "link_add interface_id=%d label=%d code=%s", args.InterfaceID, args.Label, reply.Code)
	if reply.Code == OK {
		s.DefRoute.Retry(args.NextHop.Family)
		if s.hub != nil {
			s.hub.Publish(Event{Kind: "link_added", InterfaceID: args.InterfaceID})
		}
	}
	return nil
}

type LinkDelArgs struct {
	InterfaceID uint32
}

type LinkDelReply struct {
	Code Code
}

// LinkDel is the net/rpc-exposed link_del operation.
func (s *Server) LinkDel(args *LinkDelArgs, reply *LinkDelReply) error {
	cid := s.correlate()
	_ = s.Links.LinkDel(args.InterfaceID) // idempotent, always Ok per spec.md §4.2
	reply.Code = OK
	s.log.Info("rpc link_del", "correlation_id", cid, "interface_id", args.InterfaceID)
	if s.hub != nil {
		s.hub.Publish(Event{Kind: "link_deleted", InterfaceID: args.InterfaceID})
	}
	return nil
}

func codeFromLinkErr(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, linkreg.ErrLabelOutOfRange):
		return INVALID_ARGUMENT
	case errors.Is(err, linkreg.ErrInterfaceExists):
		return EXISTS
	default:
		return INVALID_ARGUMENT
	}
}

// --- policy_add / policy_delete ---

type PolicyAddArgs struct {
	PolicyID uint32
	ACLID    uint32
	Action   policy.Action
}

type PolicyAddReply struct {
	Code Code
}

func (s *Server) PolicyAdd(args *PolicyAddArgs, reply *PolicyAddReply) error {
	err := s.Policies.Add(args.PolicyID, args.ACLID, args.Action)
	reply.Code = codeFromPolicyErr(err)
	s.log.Info("rpc policy_add", "policy_id", args.PolicyID, "code", reply.Code.String())
	logging.CtlplaneLog("info", "policy_add policy_id=%d acl_id=%d code=%s", args.PolicyID, args.ACLID, reply.Code)
	return nil
}

type PolicyDeleteArgs struct {
	PolicyID uint32
}

type PolicyDeleteReply struct {
	Code Code
}

func (s *Server) PolicyDelete(args *PolicyDeleteArgs, reply *PolicyDeleteReply) error {
	err := s.Policies.Delete(args.PolicyID)
	reply.Code = codeFromPolicyErr(err)
	s.log.Info("rpc policy_delete", "policy_id", args.PolicyID, "code", reply.Code.String())
	return nil
}

func codeFromPolicyErr(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, policy.ErrExists):
		return EXISTS
	case errors.Is(err, policy.ErrNotFound):
		return NOT_FOUND
	case errors.Is(err, policy.ErrInUse):
		return IN_USE
	default:
		return INVALID_ARGUMENT
	}
}

// --- attach / detach ---

type AttachArgs struct {
	PolicyID      uint32
	RXInterfaceID uint32
	Family        linkreg.Family
	Priority      int
}

type AttachReply struct {
	Code Code
}

func (s *Server) Attach(args *AttachArgs, reply *AttachReply) error {
	err := s.Attachments.Attach(args.PolicyID, args.RXInterfaceID, args.Family, args.Priority)
	reply.Code = codeFromAttachErr(err)
	s.log.Info("rpc attach", "policy_id", args.PolicyID, "rx_interface_id", args.RXInterfaceID, "code", reply.Code.String())
	return nil
}

type DetachArgs struct {
	PolicyID      uint32
	RXInterfaceID uint32
	Family        linkreg.Family
}

type DetachReply struct {
	Code Code
}

func (s *Server) Detach(args *DetachArgs, reply *DetachReply) error {
	err := s.Attachments.Detach(args.PolicyID, args.RXInterfaceID, args.Family)
	reply.Code = codeFromAttachErr(err)
	s.log.Info("rpc detach", "policy_id", args.PolicyID, "rx_interface_id", args.RXInterfaceID, "code", reply.Code.String())
	return nil
}

func codeFromAttachErr(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, attach.ErrDuplicate):
		return EXISTS
	case errors.Is(err, attach.ErrNotFound):
		return NOT_FOUND
	default:
		return INVALID_ARGUMENT
	}
}

// --- default_route_action_set / _clear ---

type DefaultRouteActionSetArgs struct {
	Action policy.Action
}

type DefaultRouteActionReply struct {
	Code Code
}

func (s *Server) DefaultRouteActionSet(args *DefaultRouteActionSetArgs, reply *DefaultRouteActionReply) error {
	s.Policies.SetDefaultRouteAction(args.Action)
	reply.Code = OK
	return nil
}

func (s *Server) DefaultRouteActionClear(_ *struct{}, reply *DefaultRouteActionReply) error {
	s.Policies.ClearDefaultRouteAction()
	reply.Code = OK
	return nil
}

// --- quality_set ---

type QualitySetArgs struct {
	InterfaceID uint32
	Loss        float64
	Delay       float64
	Jitter      float64
}

type QualitySetReply struct {
	Code Code
}

func (s *Server) QualitySet(args *QualitySetArgs, reply *QualitySetReply) error {
	if s.Quality == nil {
		reply.Code = INVALID_ARGUMENT
		return nil
	}
	if err := s.Quality.Report(args.InterfaceID, args.Loss, args.Delay, args.Jitter); err != nil {
		reply.Code = NOT_FOUND
		return nil
	}
	reply.Code = OK
	logging.QualityLog("info", "quality_set interface_id=%d loss=%.1f delay=%.1f jitter=%.1f", args.InterfaceID, args.Loss, args.Delay, args.Jitter)
	if s.hub != nil {
		s.hub.Publish(Event{Kind: "quality_set", InterfaceID: args.InterfaceID})
	}
	return nil
}
