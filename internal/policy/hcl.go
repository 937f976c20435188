package policy

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"grimm.is/linkpath/internal/linkreg"
)

// hclAction/hclGroup mirror the action grammar from spec.md §6:
//
//	action := [select_group random] [fallback drop] group_list
//	group_list := group | "group" <id> group ("group" <id> group)*
//	group := [random] "labels" <u8>("," <u8>)*
//
// expressed as an HCL block, following the teacher's config/hcl.go style of
// decoding policy text with gohcl rather than a hand-rolled tokenizer.
type hclAction struct {
	SelectGroup string     `hcl:"select_group,optional"`
	Fallback    string     `hcl:"fallback,optional"`
	Groups      []hclGroup `hcl:"group,block"`
}

type hclGroup struct {
	ID        string `hcl:"id,label"`
	Selection string `hcl:"selection,optional"`
	Labels    []int  `hcl:"labels"`
}

// ParseAction decodes an HCL "action" block (spec.md §6 grammar, expressed
// as HCL rather than its own mini-DSL) into a policy.Action with its
// flow-hash index constants precomputed.
func ParseAction(filename string, src []byte) (Action, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Action{}, fmt.Errorf("policy: parse action: %w", diags)
	}

	var wrapper struct {
		Action hclAction `hcl:"action,block"`
	}
	if diags := gohcl.DecodeBody(file.Body, nil, &wrapper); diags.HasErrors() {
		return Action{}, fmt.Errorf("policy: decode action: %w", diags)
	}

	return actionFromHCL(wrapper.Action)
}

func actionFromHCL(a hclAction) (Action, error) {
	fallback := FallbackDefaultRoute
	switch strings.ToLower(a.Fallback) {
	case "", "default_route":
		fallback = FallbackDefaultRoute
	case "drop":
		fallback = FallbackDrop
	default:
		return Action{}, fmt.Errorf("policy: invalid fallback %q", a.Fallback)
	}

	groupSelection := Ordered
	switch strings.ToLower(a.SelectGroup) {
	case "", "ordered":
		groupSelection = Ordered
	case "random":
		groupSelection = Random
	default:
		return Action{}, fmt.Errorf("policy: invalid select_group %q", a.SelectGroup)
	}

	groups := make([]Group, 0, len(a.Groups))
	for _, hg := range a.Groups {
		sel := Ordered
		switch strings.ToLower(hg.Selection) {
		case "", "ordered":
			sel = Ordered
		case "random":
			sel = Random
		default:
			return Action{}, fmt.Errorf("policy: group %q: invalid selection %q", hg.ID, hg.Selection)
		}

		labels := make([]linkreg.Label, 0, len(hg.Labels))
		for _, v := range hg.Labels {
			if v < 0 || v > int(linkreg.MaxLabel) {
				return Action{}, fmt.Errorf("policy: group %q: label %d out of range [0,%d]", hg.ID, v, linkreg.MaxLabel)
			}
			labels = append(labels, linkreg.Label(v))
		}
		groups = append(groups, NewGroup(sel, labels))
	}

	return NewAction(fallback, groupSelection, groups), nil
}
