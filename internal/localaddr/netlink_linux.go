//go:build linux

package localaddr

import (
	"context"
	"net/netip"

	"github.com/vishvananda/netlink"

	"grimm.is/linkpath/internal/logging"
)

// WatchNetlink seeds filter with every address currently configured on the
// host and keeps it in sync via netlink address notifications, generalizing
// the teacher's internal/network/monitor.go AddrSubscribe loop from
// interface-health bookkeeping to local-address-set membership.
func WatchNetlink(ctx context.Context, filter *Filter) error {
	log := logging.WithComponent("localaddr.netlink")

	addrs, err := netlink.AddrList(nil, netlink.FAMILY_ALL)
	if err != nil {
		return err
	}
	for _, a := range addrs {
		if addr, ok := netip.AddrFromSlice(a.IP); ok {
			filter.Add(addr.Unmap())
		}
	}

	updates := make(chan netlink.AddrUpdate)
	if err := netlink.AddrSubscribeWithOptions(updates, ctx.Done(), netlink.AddrSubscribeOptions{
		ErrorCallback: func(err error) { log.Warn("addr subscribe error", "error", err) },
	}); err != nil {
		return err
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
				addr, ok := netip.AddrFromSlice(update.LinkAddress.IP)
				if !ok {
					continue
				}
				filter.OnAddressChange(addr.Unmap(), update.NewAddr)
			}
		}
	}()

	return nil
}
