package ctlplane

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/linkpath/internal/attach"
	"grimm.is/linkpath/internal/defroute"
	"grimm.is/linkpath/internal/linkreg"
	"grimm.is/linkpath/internal/policy"
)

type noopRegistrar struct{}
type noopHandle struct{}

func (noopHandle) Unsubscribe() {}

func (noopRegistrar) Subscribe(nh linkreg.NextHop, onChange func(linkreg.BackWalkEvent)) (linkreg.BackWalkHandle, linkreg.BackWalkEvent, error) {
	return noopHandle{}, linkreg.BackWalkEvent{Resolved: false}, nil
}

type noopDefaultRouteSource struct{}

func (noopDefaultRouteSource) LookupDefaultRoute(family linkreg.Family) (string, bool) { return "", false }
func (noopDefaultRouteSource) Subscribe(handle string, onChange func([]linkreg.AdjID)) (linkreg.BackWalkHandle, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	links := linkreg.New(noopRegistrar{}, nil)
	policies := policy.NewStore(nil)
	attachments := attach.NewStore(policies, nil, nil)
	defRoute := defroute.New(noopDefaultRouteSource{})
	return NewServer(links, defRoute, policies, attachments, nil, nil)
}

func simpleAction() policy.Action {
	return policy.NewAction(policy.FallbackDrop, policy.Ordered, []policy.Group{
		policy.NewGroup(policy.Ordered, []linkreg.Label{1}),
	})
}

func TestLinkAddAndDel(t *testing.T) {
	s := newTestServer(t)

	var addReply LinkAddReply
	err := s.LinkAdd(&LinkAddArgs{InterfaceID: 1, Label: 1, NextHop: linkreg.NextHop{Family: linkreg.V4}}, &addReply)
	require.NoError(t, err)
	assert.Equal(t, OK, addReply.Code)

	var dupReply LinkAddReply
	err = s.LinkAdd(&LinkAddArgs{InterfaceID: 1, Label: 2, NextHop: linkreg.NextHop{Family: linkreg.V4}}, &dupReply)
	require.NoError(t, err)
	assert.Equal(t, EXISTS, dupReply.Code)

	var delReply LinkDelReply
	err = s.LinkDel(&LinkDelArgs{InterfaceID: 1}, &delReply)
	require.NoError(t, err)
	assert.Equal(t, OK, delReply.Code)
}

func TestLinkAddRejectsOutOfRangeLabel(t *testing.T) {
	s := newTestServer(t)
	var reply LinkAddReply
	err := s.LinkAdd(&LinkAddArgs{InterfaceID: 1, Label: linkreg.LabelInvalid, NextHop: linkreg.NextHop{Family: linkreg.V4}}, &reply)
	require.NoError(t, err)
	assert.Equal(t, INVALID_ARGUMENT, reply.Code)
}

func TestPolicyAddDeleteLifecycle(t *testing.T) {
	s := newTestServer(t)

	var addReply PolicyAddReply
	require.NoError(t, s.PolicyAdd(&PolicyAddArgs{PolicyID: 1, ACLID: 100, Action: simpleAction()}, &addReply))
	assert.Equal(t, OK, addReply.Code)

	var dupReply PolicyAddReply
	require.NoError(t, s.PolicyAdd(&PolicyAddArgs{PolicyID: 1, ACLID: 100, Action: simpleAction()}, &dupReply))
	assert.Equal(t, EXISTS, dupReply.Code)

	var delReply PolicyDeleteReply
	require.NoError(t, s.PolicyDelete(&PolicyDeleteArgs{PolicyID: 1}, &delReply))
	assert.Equal(t, OK, delReply.Code)

	var notFoundReply PolicyDeleteReply
	require.NoError(t, s.PolicyDelete(&PolicyDeleteArgs{PolicyID: 1}, &notFoundReply))
	assert.Equal(t, NOT_FOUND, notFoundReply.Code)
}

func TestPolicyDeleteInUseBlocked(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.PolicyAdd(&PolicyAddArgs{PolicyID: 1, ACLID: 100, Action: simpleAction()}, &PolicyAddReply{}))

	var attachReply AttachReply
	require.NoError(t, s.Attach(&AttachArgs{PolicyID: 1, RXInterfaceID: 7, Family: linkreg.V4, Priority: 10}, &attachReply))
	assert.Equal(t, OK, attachReply.Code)

	var delReply PolicyDeleteReply
	require.NoError(t, s.PolicyDelete(&PolicyDeleteArgs{PolicyID: 1}, &delReply))
	assert.Equal(t, IN_USE, delReply.Code)

	var detachReply DetachReply
	require.NoError(t, s.Detach(&DetachArgs{PolicyID: 1, RXInterfaceID: 7, Family: linkreg.V4}, &detachReply))
	assert.Equal(t, OK, detachReply.Code)

	require.NoError(t, s.PolicyDelete(&PolicyDeleteArgs{PolicyID: 1}, &delReply))
	assert.Equal(t, OK, delReply.Code)
}

func TestDefaultRouteActionSetAndClear(t *testing.T) {
	s := newTestServer(t)

	var setReply DefaultRouteActionReply
	require.NoError(t, s.DefaultRouteActionSet(&DefaultRouteActionSetArgs{Action: simpleAction()}, &setReply))
	assert.Equal(t, OK, setReply.Code)

	_, ok := s.Policies.DefaultRouteAction()
	assert.True(t, ok)

	var clearReply DefaultRouteActionReply
	require.NoError(t, s.DefaultRouteActionClear(&struct{}{}, &clearReply))
	assert.Equal(t, OK, clearReply.Code)

	_, ok = s.Policies.DefaultRouteAction()
	assert.False(t, ok)
}

func TestQualitySetWithoutTrackerIsInvalidArgument(t *testing.T) {
	s := newTestServer(t)
	var reply QualitySetReply
	require.NoError(t, s.QualitySet(&QualitySetArgs{InterfaceID: 1, Loss: 0}, &reply))
	assert.Equal(t, INVALID_ARGUMENT, reply.Code)
}

func TestListLinksAndPolicies(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.LinkAdd(&LinkAddArgs{InterfaceID: 1, Label: 1, NextHop: linkreg.NextHop{Family: linkreg.V4}}, &LinkAddReply{}))
	require.NoError(t, s.PolicyAdd(&PolicyAddArgs{PolicyID: 1, ACLID: 100, Action: simpleAction()}, &PolicyAddReply{}))

	var linksReply ListLinksReply
	require.NoError(t, s.ListLinks(&ListLinksArgs{}, &linksReply))
	assert.Len(t, linksReply.Links, 1)

	var policiesReply ListPoliciesReply
	require.NoError(t, s.ListPolicies(&ListPoliciesArgs{}, &policiesReply))
	assert.Len(t, policiesReply.Policies, 1)
}

func TestNotificationHubPublishToSubscriber(t *testing.T) {
	hub := NewNotificationHub()
	sub := &subscriber{send: make(chan Event, 1)}
	hub.addSubscriber(sub)
	defer hub.removeSubscriber(sub)

	hub.Publish(Event{Kind: "link_added", InterfaceID: 5})

	evt := <-sub.send
	assert.Equal(t, "link_added", evt.Kind)
	assert.Equal(t, uint32(5), evt.InterfaceID)
}

func TestNotificationHubDropsEventForFullSubscriber(t *testing.T) {
	hub := NewNotificationHub()
	sub := &subscriber{send: make(chan Event, 1)}
	hub.addSubscriber(sub)
	defer hub.removeSubscriber(sub)

	hub.Publish(Event{Kind: "first"})
	hub.Publish(Event{Kind: "second"}) // dropped: channel already full

	evt := <-sub.send
	assert.Equal(t, "first", evt.Kind)
}
