// Command linkpathtui is a terminal viewer over a running linkpath engine's
// control plane, generalizing the teacher's cmd/tuidemo wiring
// (tea.NewProgram(tui.NewModel(backend), tea.WithAltScreen())) from a mock
// backend to a real net/rpc client.
package main

import (
	"flag"
	"fmt"
	"net/rpc"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"grimm.is/linkpath/internal/attach"
	"grimm.is/linkpath/internal/ctlplane"
	"grimm.is/linkpath/internal/linkreg"
	"grimm.is/linkpath/internal/policy"
	"grimm.is/linkpath/internal/tui"
)

// rpcBackend adapts a net/rpc client to tui.Backend.
type rpcBackend struct {
	client *rpc.Client
}

func (b *rpcBackend) ListLinks() ([]linkreg.Link, error) {
	var reply ctlplane.ListLinksReply
	if err := b.client.Call("Server.ListLinks", &ctlplane.ListLinksArgs{}, &reply); err != nil {
		return nil, err
	}
	return reply.Links, nil
}

func (b *rpcBackend) ListPolicies() ([]policy.Policy, error) {
	var reply ctlplane.ListPoliciesReply
	if err := b.client.Call("Server.ListPolicies", &ctlplane.ListPoliciesArgs{}, &reply); err != nil {
		return nil, err
	}
	return reply.Policies, nil
}

func (b *rpcBackend) ListAttachments(rxInterfaceID uint32, family linkreg.Family) ([]attach.Attachment, error) {
	var reply ctlplane.ListAttachmentsReply
	args := ctlplane.ListAttachmentsArgs{RXInterfaceID: rxInterfaceID, Family: family}
	if err := b.client.Call("Server.ListAttachments", &args, &reply); err != nil {
		return nil, err
	}
	return reply.Attachments, nil
}

func main() {
	addr := flag.String("addr", "localhost:7171", "linkpath control-plane RPC address")
	flag.Parse()

	client, err := rpc.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "linkpathtui: connect to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer client.Close()

	backend := &rpcBackend{client: client}
	p := tea.NewProgram(tui.NewModel(backend), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "linkpathtui: %v\n", err)
		os.Exit(1)
	}
}
