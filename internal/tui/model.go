// Package tui is the interactive introspection viewer: a read-only browser
// over the engine's links and policies (the Attachments tab is a placeholder),
// generalized from the teacher's internal/tui dashboard/flows/policy tabs
// (internal/tui/model.go) to this engine's own domain objects.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"grimm.is/linkpath/internal/attach"
	"grimm.is/linkpath/internal/linkreg"
	"grimm.is/linkpath/internal/policy"
)

// View identifies the active tab.
type View int

const (
	ViewLinks View = iota
	ViewPolicies
	ViewAttachments
	viewCount
)

func (v View) String() string {
	switch v {
	case ViewLinks:
		return "Links"
	case ViewPolicies:
		return "Policies"
	case ViewAttachments:
		return "Attachments"
	default:
		return "?"
	}
}

// Backend is the narrow read surface the TUI polls. A real implementation
// talks to ctlplane.Server over net/rpc; tests use a fake.
type Backend interface {
	ListLinks() ([]linkreg.Link, error)
	ListPolicies() ([]policy.Policy, error)
	ListAttachments(rxInterfaceID uint32, family linkreg.Family) ([]attach.Attachment, error)
}

// refreshMsg carries a fresh poll of every view's data.
type refreshMsg struct {
	links    []linkreg.Link
	policies []policy.Policy
	err      error
}

// Model is the root bubbletea model.
type Model struct {
	Backend Backend

	ActiveView View
	Width      int
	Height     int

	Links    LinksModel
	Policies PoliciesModel

	lastErr error
}

// NewModel builds the initial Model.
func NewModel(backend Backend) Model {
	return Model{
		Backend:  backend,
		Links:    NewLinksModel(backend),
		Policies: NewPoliciesModel(backend),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.Links.Init(), m.Policies.Init())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.ActiveView = (m.ActiveView + 1) % viewCount
			return m, nil
		case "1":
			m.ActiveView = ViewLinks
			return m, nil
		case "2":
			m.ActiveView = ViewPolicies
			return m, nil
		case "3":
			m.ActiveView = ViewAttachments
			return m, nil
		case "r":
			return m, tea.Batch(m.Links.Init(), m.Policies.Init())
		}
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	}

	var cmd tea.Cmd
	m.Links, cmd = m.Links.Update(msg)
	cmds = append(cmds, cmd)
	m.Policies, cmd = m.Policies.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	tabs := make([]string, 0, int(viewCount))
	for v := View(0); v < viewCount; v++ {
		style := StyleTabInactive
		if v == m.ActiveView {
			style = StyleTabActive
		}
		tabs = append(tabs, style.Render(v.String()))
	}

	header := StyleHeader.Render("linkpath — " + joinTabs(tabs))

	var body string
	switch m.ActiveView {
	case ViewLinks:
		body = m.Links.View()
	case ViewPolicies:
		body = m.Policies.View()
	case ViewAttachments:
		body = "Select a link in the Links tab to inspect its attachments (not yet wired in this view)."
	}

	status := StyleStatusBar.Render("tab: switch  1/2/3: jump  r: refresh  q: quit")

	return header + "\n" + body + "\n" + status
}

func joinTabs(tabs []string) string {
	out := ""
	for i, t := range tabs {
		if i > 0 {
			out += "  "
		}
		out += t
	}
	return out
}
