//go:build linux

package linkreg

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/mdlayher/ndp"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"

	"grimm.is/linkpath/internal/logging"
)

// NetlinkRegistrar implements BackWalkRegistrar over the kernel's netlink
// route and neighbor tables, generalizing the teacher's interface monitor
// (internal/network/monitor.go) from a single global callback into a
// per-subscription registration handle, per the design note in spec.md §9.
type NetlinkRegistrar struct {
	log *logging.Logger

	mu   sync.Mutex
	subs map[int]*netlinkSub
	next int
}

// NewNetlinkRegistrar builds a NetlinkRegistrar. Each subscription it hands
// out stops watching netlink when its handle's Unsubscribe is called.
func NewNetlinkRegistrar() *NetlinkRegistrar {
	return &NetlinkRegistrar{
		log:  logging.WithComponent("linkreg.netlink"),
		subs: make(map[int]*netlinkSub),
	}
}

type netlinkSub struct {
	cancel context.CancelFunc
}

func (s *netlinkSub) Unsubscribe() {
	s.cancel()
}

// Subscribe resolves nh's initial reachability and starts a goroutine that
// watches netlink route and neighbor updates for nh.IfIndex, dispatching to
// onChange whenever the resolution flips. A Link is Reachable only once a
// route to its next hop exists *and*, when the next hop carries a gateway
// address, the kernel's ARP/ND neighbor entry for that gateway has resolved
// a link-layer address (spec.md §4.2 "Reachable" hinges on both).
func (n *NetlinkRegistrar) Subscribe(nh NextHop, onChange func(BackWalkEvent)) (BackWalkHandle, BackWalkEvent, error) {
	ns, err := resolveNetns(nh.Netns)
	if err != nil {
		return nil, BackWalkEvent{}, fmt.Errorf("linkreg: resolve netns %q: %w", nh.Netns, err)
	}

	handle, err := netlink.NewHandleAt(ns)
	if err != nil {
		return nil, BackWalkEvent{}, fmt.Errorf("linkreg: netlink handle: %w", err)
	}
	defer handle.Close()

	initial := n.probe(handle, nh)

	ctx, cancel := context.WithCancel(context.Background())
	sub := &netlinkSub{cancel: cancel}

	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = sub
	n.mu.Unlock()

	routeUpdates := make(chan netlink.RouteUpdate)
	if err := netlink.RouteSubscribeWithOptions(routeUpdates, ctx.Done(), netlink.RouteSubscribeOptions{
		ErrorCallback: func(err error) { n.log.Warn("route subscribe error", "error", err) },
	}); err != nil {
		cancel()
		return nil, BackWalkEvent{}, fmt.Errorf("linkreg: route subscribe: %w", err)
	}

	neighUpdates := make(chan netlink.NeighUpdate)
	if err := netlink.NeighSubscribeWithOptions(neighUpdates, ctx.Done(), netlink.NeighSubscribeOptions{
		ErrorCallback: func(err error) { n.log.Warn("neigh subscribe error", "error", err) },
	}); err != nil {
		cancel()
		return nil, BackWalkEvent{}, fmt.Errorf("linkreg: neigh subscribe: %w", err)
	}

	go n.watch(ctx, routeUpdates, neighUpdates, nh, onChange)

	if nh.Family == V6 && nh.Gateway.IsValid() {
		go n.solicitV6(nh)
	}

	return sub, initial, nil
}

func (n *NetlinkRegistrar) watch(ctx context.Context, routes chan netlink.RouteUpdate, neighs chan netlink.NeighUpdate, nh NextHop, onChange func(BackWalkEvent)) {
	var route BackWalkEvent
	haveRoute := false
	// A point-to-point next hop has no gateway address to resolve, so there
	// is no neighbor entry gating it; treat that case as always satisfied.
	neighResolved := !nh.Gateway.IsValid()

	emit := func() {
		if haveRoute && neighResolved {
			onChange(route)
		} else {
			onChange(BackWalkEvent{Resolved: false})
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-routes:
			if !ok {
				return
			}
			if !routeAffectsNextHop(update.Route, nh) {
				continue
			}
			if update.Type == unix.RTM_DELROUTE {
				haveRoute = false
			} else {
				ev := eventFromRoute(update.Route)
				haveRoute = ev.Resolved
				route = ev
			}
			emit()
		case update, ok := <-neighs:
			if !ok {
				return
			}
			if !neighMatchesGateway(update.Neigh, nh) {
				continue
			}
			neighResolved = neighStateResolved(update.Neigh.State)
			emit()
		}
	}
}

func (n *NetlinkRegistrar) probe(handle *netlink.Handle, nh NextHop) BackWalkEvent {
	family := netlink.FAMILY_V4
	if nh.Family == V6 {
		family = netlink.FAMILY_V6
	}

	filter := &netlink.Route{LinkIndex: nh.IfIndex}
	routes, err := handle.RouteListFiltered(family, filter, netlink.RT_FILTER_OIF)
	if err != nil || len(routes) == 0 {
		return BackWalkEvent{Resolved: false}
	}

	ev := eventFromRoute(routes[0])
	if !ev.Resolved || !nh.Gateway.IsValid() {
		return ev
	}

	neighs, err := handle.NeighList(int(nh.IfIndex), family)
	if err != nil {
		return BackWalkEvent{Resolved: false}
	}
	for _, neigh := range neighs {
		if neighMatchesGateway(neigh, nh) && neighStateResolved(neigh.State) {
			return ev
		}
	}
	return BackWalkEvent{Resolved: false}
}

// solicitV6 sends an IPv6 Neighbor Solicitation for nh's gateway, nudging
// the kernel's neighbor table toward resolution instead of waiting on
// passive traffic. This mirrors the teacher's ra service opening a per-
// interface ndp.Conn (internal/services/ra/service.go); the kernel's own
// neighbor-table entry, observed over netlink above, remains the source of
// truth for when the Link actually becomes Reachable.
func (n *NetlinkRegistrar) solicitV6(nh NextHop) {
	ifi, err := net.InterfaceByIndex(int(nh.IfIndex))
	if err != nil {
		n.log.Warn("ndp solicit: interface lookup failed", "interface_id", nh.IfIndex, "error", err)
		return
	}

	conn, _, err := ndp.Listen(ifi, ndp.LinkLocal)
	if err != nil {
		n.log.Warn("ndp listen failed, v6 neighbor resolution left to the kernel", "interface_id", nh.IfIndex, "error", err)
		return
	}
	defer conn.Close()

	msg := &ndp.NeighborSolicitation{
		TargetAddress: nh.Gateway,
		Options: []ndp.Option{
			&ndp.LinkLayerAddress{
				Direction: ndp.Source,
				Addr:      ifi.HardwareAddr,
			},
		},
	}

	if err := conn.WriteTo(msg, nil, nh.Gateway); err != nil {
		n.log.Warn("neighbor solicitation failed", "interface_id", nh.IfIndex, "error", err)
	}
}

func routeAffectsNextHop(route netlink.Route, nh NextHop) bool {
	if route.LinkIndex != 0 && route.LinkIndex != nh.IfIndex {
		return false
	}
	if !nh.Gateway.IsValid() {
		return true
	}
	if route.Gw == nil {
		return false
	}
	gw, ok := netip.AddrFromSlice(route.Gw)
	return ok && gw.Unmap() == nh.Gateway.Unmap()
}

// neighMatchesGateway reports whether neigh is the kernel's neighbor-table
// entry for nh's gateway address on nh's interface.
func neighMatchesGateway(neigh netlink.Neigh, nh NextHop) bool {
	if !nh.Gateway.IsValid() {
		return false
	}
	if neigh.LinkIndex != int(nh.IfIndex) {
		return false
	}
	ip, ok := netip.AddrFromSlice(neigh.IP)
	if !ok {
		return false
	}
	return ip.Unmap() == nh.Gateway.Unmap()
}

// neighStateResolved reports whether a neighbor-table NUD state carries a
// usable link-layer address, the ARP/ND-resolved condition spec.md §4.2's
// Reachable state hinges on.
func neighStateResolved(state int) bool {
	const resolved = netlink.NUD_REACHABLE | netlink.NUD_PERMANENT | netlink.NUD_NOARP | netlink.NUD_STALE | netlink.NUD_DELAY | netlink.NUD_PROBE
	return state&resolved != 0
}

func eventFromRoute(route netlink.Route) BackWalkEvent {
	if route.LinkIndex == 0 {
		return BackWalkEvent{Resolved: false}
	}
	return BackWalkEvent{
		Resolved: true,
		AdjID:    AdjID(route.LinkIndex),
		NextNode: "ip4-rewrite",
	}
}

func resolveNetns(name string) (netns.NsHandle, error) {
	if name == "" {
		return netns.None(), nil
	}
	return netns.GetFromName(name)
}
