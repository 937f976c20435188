package ctlplane

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/linkpath/internal/linkreg"
)

func TestDumpLinksRendersYAML(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.LinkAdd(&LinkAddArgs{InterfaceID: 1, Label: 10, NextHop: linkreg.NextHop{Family: linkreg.V4}}, &LinkAddReply{}))

	var reply DumpLinksReply
	require.NoError(t, s.DumpLinks(&DumpLinksArgs{}, &reply))
	assert.Contains(t, reply.YAML, "interface_id: 1")
	assert.Contains(t, reply.YAML, "label: 10")
}

func TestDumpPoliciesRendersYAML(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.PolicyAdd(&PolicyAddArgs{PolicyID: 1, ACLID: 100, Action: simpleAction()}, &PolicyAddReply{}))

	var reply DumpPoliciesReply
	require.NoError(t, s.DumpPolicies(&DumpPoliciesArgs{}, &reply))
	assert.Contains(t, reply.YAML, "policy_id: 1")
	assert.Contains(t, reply.YAML, "fallback: drop")
}

func TestDumpLinksEmptyRegistryYieldsEmptyList(t *testing.T) {
	s := newTestServer(t)
	var reply DumpLinksReply
	require.NoError(t, s.DumpLinks(&DumpLinksArgs{}, &reply))
	assert.Equal(t, "[]\n", reply.YAML)
}
