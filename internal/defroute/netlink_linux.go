//go:build linux

package defroute

import (
	"context"
	"sync"

	"github.com/vishvananda/netlink"

	"grimm.is/linkpath/internal/linkreg"
	"grimm.is/linkpath/internal/logging"
)

// NetlinkSource implements Source over the kernel's default routing table,
// generalizing the teacher's monitor.go handleRouteUpdate "dst == nil"
// default-route check into a per-family Subscribe/back-walk pair, the same
// way linkreg.NetlinkRegistrar generalizes it for per-link routes.
type NetlinkSource struct {
	log *logging.Logger

	mu   sync.Mutex
	subs map[int]context.CancelFunc
	next int
}

// NewNetlinkSource builds a NetlinkSource.
func NewNetlinkSource() *NetlinkSource {
	return &NetlinkSource{
		log:  logging.WithComponent("defroute.netlink"),
		subs: make(map[int]context.CancelFunc),
	}
}

func familyHandle(family linkreg.Family) string {
	if family == linkreg.V6 {
		return "v6"
	}
	return "v4"
}

func netlinkFamily(handle string) int {
	if handle == "v6" {
		return netlink.FAMILY_V6
	}
	return netlink.FAMILY_V4
}

// LookupDefaultRoute reports whether the kernel currently carries a
// default route for family.
func (n *NetlinkSource) LookupDefaultRoute(family linkreg.Family) (string, bool) {
	handle := familyHandle(family)
	routes, err := defaultRoutes(netlinkFamily(handle))
	if err != nil || len(routes) == 0 {
		return handle, false
	}
	return handle, true
}

type cancelHandle struct{ cancel context.CancelFunc }

func (h cancelHandle) Unsubscribe() { h.cancel() }

// Subscribe watches netlink route updates and recomputes the set of
// adjacencies reachable via the default route every time it changes.
func (n *NetlinkSource) Subscribe(handle string, onChange func([]linkreg.AdjID)) (linkreg.BackWalkHandle, error) {
	family := netlinkFamily(handle)

	ctx, cancel := context.WithCancel(context.Background())

	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = cancel
	n.mu.Unlock()

	updates := make(chan netlink.RouteUpdate)
	if err := netlink.RouteSubscribeWithOptions(updates, ctx.Done(), netlink.RouteSubscribeOptions{
		ErrorCallback: func(err error) { n.log.Warn("route subscribe error", "error", err) },
	}); err != nil {
		cancel()
		return nil, err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Route.Dst != nil {
					continue // not a default route change
				}
				routes, err := defaultRoutes(family)
				if err != nil {
					continue
				}
				onChange(adjacenciesFromRoutes(routes))
			}
		}
	}()

	return cancelHandle{cancel: cancel}, nil
}

func defaultRoutes(family int) ([]netlink.Route, error) {
	all, err := netlink.RouteListFiltered(family, &netlink.Route{Dst: nil}, 0)
	if err != nil {
		return nil, err
	}
	var out []netlink.Route
	for _, r := range all {
		if r.Dst == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func adjacenciesFromRoutes(routes []netlink.Route) []linkreg.AdjID {
	adj := make([]linkreg.AdjID, 0, len(routes))
	for _, r := range routes {
		if r.LinkIndex != 0 {
			adj = append(adj, linkreg.AdjID(r.LinkIndex))
		}
	}
	return adj
}
