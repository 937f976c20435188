package ctlplane

import (
	"gopkg.in/yaml.v2"

	"grimm.is/linkpath/internal/linkreg"
	"grimm.is/linkpath/internal/policy"
)

// linkDump and policyDump are the YAML-friendly projections of linkreg.Link
// and policy.Policy: both carry fields (netip.Addr, unexported validity
// flags) that round-trip awkwardly through yaml.v2, so dump builds its own
// shape rather than encoding the live structs directly, mirroring
// cmd/gen-docs's pattern of encoding a purpose-built document rather than
// an in-memory type.
type linkDump struct {
	InterfaceID uint32  `yaml:"interface_id"`
	Label       uint32  `yaml:"label"`
	Family      string  `yaml:"family"`
	Gateway     string  `yaml:"gateway,omitempty"`
	IfIndex     int     `yaml:"if_index"`
	Netns       string  `yaml:"netns,omitempty"`
	NextNode    string  `yaml:"next_node"`
	AdjID       uint32  `yaml:"adj_id"`
	State       string  `yaml:"state"`
	Loss        float64 `yaml:"loss"`
	Delay       float64 `yaml:"delay"`
	Jitter      float64 `yaml:"jitter"`
}

type policyDump struct {
	PolicyID uint32          `yaml:"policy_id"`
	ACLID    uint32          `yaml:"acl_id"`
	RefCount int             `yaml:"ref_count"`
	Fallback string          `yaml:"fallback"`
	Counters policyDumpCount `yaml:"counters"`
}

type policyDumpCount struct {
	Matched      uint64 `yaml:"matched"`
	Applied      uint64 `yaml:"applied"`
	Fallback     uint64 `yaml:"fallback"`
	Dropped      uint64 `yaml:"dropped"`
	DefaultRoute uint64 `yaml:"default_route"`
}

func toLinkDump(l linkreg.Link) linkDump {
	gw := ""
	if l.NextHop.Gateway.IsValid() {
		gw = l.NextHop.Gateway.String()
	}
	return linkDump{
		InterfaceID: l.InterfaceID,
		Label:       uint32(l.Label),
		Family:      l.Family.String(),
		Gateway:     gw,
		IfIndex:     l.NextHop.IfIndex,
		Netns:       l.NextHop.Netns,
		NextNode:    l.Descriptor.NextNode,
		AdjID:       uint32(l.Descriptor.AdjID),
		State:       l.State.String(),
		Loss:        l.Quality.Loss,
		Delay:       l.Quality.Delay,
		Jitter:      l.Quality.Jitter,
	}
}

func toPolicyDump(p policy.Policy) policyDump {
	return policyDump{
		PolicyID: p.PolicyID,
		ACLID:    p.ACLID,
		RefCount: p.RefCount,
		Fallback: p.Action.Fallback.String(),
		Counters: policyDumpCount{
			Matched:      p.Counters.Matched,
			Applied:      p.Counters.Applied,
			Fallback:     p.Counters.Fallback,
			Dropped:      p.Counters.Dropped,
			DefaultRoute: p.Counters.DefaultRoute,
		},
	}
}

// --- dump_links ---

type DumpLinksArgs struct{}

type DumpLinksReply struct {
	YAML string
}

// DumpLinks renders every registered Link as YAML, for the `dump links`
// CLI/TUI surface (SPEC_FULL.md §3).
func (s *Server) DumpLinks(_ *DumpLinksArgs, reply *DumpLinksReply) error {
	links := s.Links.Links()
	dumps := make([]linkDump, len(links))
	for i, l := range links {
		dumps[i] = toLinkDump(l)
	}
	out, err := yaml.Marshal(dumps)
	if err != nil {
		return err
	}
	reply.YAML = string(out)
	return nil
}

// --- dump_policies ---

type DumpPoliciesArgs struct{}

type DumpPoliciesReply struct {
	YAML string
}

// DumpPolicies renders every Policy (action fallback and counters, not the
// full group/label tree) as YAML, for the `dump policies` CLI/TUI surface
// (SPEC_FULL.md §3).
func (s *Server) DumpPolicies(_ *DumpPoliciesArgs, reply *DumpPoliciesReply) error {
	pols := s.Policies.List()
	dumps := make([]policyDump, len(pols))
	for i, p := range pols {
		dumps[i] = toPolicyDump(p)
	}
	out, err := yaml.Marshal(dumps)
	if err != nil {
		return err
	}
	reply.YAML = string(out)
	return nil
}
