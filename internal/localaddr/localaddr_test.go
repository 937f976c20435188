package localaddr

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSeedsBroadcast(t *testing.T) {
	f := New()
	assert.True(t, f.ContainsV4(netip.MustParseAddr("255.255.255.255")))
	v4, v6 := f.Len()
	assert.Equal(t, 1, v4)
	assert.Equal(t, 0, v6)
}

func TestAddRemoveV4(t *testing.T) {
	f := New()
	addr := netip.MustParseAddr("10.0.0.1")
	require.False(t, f.ContainsV4(addr))

	f.Add(addr)
	assert.True(t, f.ContainsV4(addr))
	assert.True(t, f.Contains(addr))

	f.Remove(addr)
	assert.False(t, f.ContainsV4(addr))
}

func TestAddRemoveV6(t *testing.T) {
	f := New()
	addr := netip.MustParseAddr("2001:db8::1")
	f.Add(addr)
	assert.True(t, f.ContainsV6(addr))
	assert.False(t, f.ContainsV4(addr))

	f.Remove(addr)
	assert.False(t, f.ContainsV6(addr))
}

func TestOnAddressChange(t *testing.T) {
	f := New()
	addr := netip.MustParseAddr("192.0.2.1")
	f.OnAddressChange(addr, true)
	assert.True(t, f.Contains(addr))
	f.OnAddressChange(addr, false)
	assert.False(t, f.Contains(addr))
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	f := New()
	addr := netip.MustParseAddr("198.51.100.1")
	assert.NotPanics(t, func() { f.Remove(addr) })
}
