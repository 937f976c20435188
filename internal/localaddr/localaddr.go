// Package localaddr tracks the router's own IPv4/IPv6 addresses so the
// datapath can bypass policy routing for locally-destined traffic.
//
// This is a query-only membership test from the datapath's point of view;
// mutation only happens from the control plane / routing-layer callbacks
// that observe interface address changes.
package localaddr

import (
	"net/netip"
	"sync"
)

// Filter is a hash-set membership test over the router's local addresses.
// Sized for roughly 24k entries (spec budget); a Go map scales past that
// without any special-casing.
type Filter struct {
	mu sync.RWMutex
	v4 map[netip.Addr]struct{}
	v6 map[netip.Addr]struct{}
}

// broadcastV4 is seeded into every new Filter, matching the engine's initial
// local-address set.
var broadcastV4 = netip.MustParseAddr("255.255.255.255")

// New creates an empty Filter seeded with the limited-broadcast address.
func New() *Filter {
	f := &Filter{
		v4: make(map[netip.Addr]struct{}, 1024),
		v6: make(map[netip.Addr]struct{}, 1024),
	}
	f.v4[broadcastV4] = struct{}{}
	return f
}

// Add registers addr as a local address. Family is inferred from addr.
func (f *Filter) Add(addr netip.Addr) {
	addr = addr.Unmap()
	f.mu.Lock()
	defer f.mu.Unlock()
	if addr.Is4() {
		f.v4[addr] = struct{}{}
	} else if addr.Is6() {
		f.v6[addr] = struct{}{}
	}
}

// Remove un-registers addr as a local address. No-op if absent.
func (f *Filter) Remove(addr netip.Addr) {
	addr = addr.Unmap()
	f.mu.Lock()
	defer f.mu.Unlock()
	if addr.Is4() {
		delete(f.v4, addr)
	} else if addr.Is6() {
		delete(f.v6, addr)
	}
}

// ContainsV4 reports whether addr is one of the router's own IPv4 addresses.
func (f *Filter) ContainsV4(addr netip.Addr) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.v4[addr.Unmap()]
	return ok
}

// ContainsV6 reports whether addr is one of the router's own IPv6 addresses.
func (f *Filter) ContainsV6(addr netip.Addr) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.v6[addr]
	return ok
}

// Contains reports local-address membership regardless of family.
func (f *Filter) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.Is4() {
		return f.ContainsV4(addr)
	}
	return f.ContainsV6(addr)
}

// Len returns the total number of tracked addresses, for introspection.
func (f *Filter) Len() (v4, v6 int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.v4), len(f.v6)
}

// OnAddressChange adapts an interface-address-change callback (as emitted by
// the routing layer's address monitor) into Add/Remove calls. added is true
// for a newly-configured address, false for one being torn down.
func (f *Filter) OnAddressChange(addr netip.Addr, added bool) {
	if added {
		f.Add(addr)
	} else {
		f.Remove(addr)
	}
}
