package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/linkpath/internal/policy"
)

// PoliciesModel renders the Policy Store's current state, including the
// counters the Policy Decision Module updates per packet.
type PoliciesModel struct {
	Backend  Backend
	Table    table.Model
	Policies []policy.Policy
	Err      error
}

func NewPoliciesModel(backend Backend) PoliciesModel {
	columns := []table.Column{
		{Title: "Policy", Width: 8},
		{Title: "ACL", Width: 8},
		{Title: "Refs", Width: 5},
		{Title: "Matched", Width: 9},
		{Title: "Applied", Width: 9},
		{Title: "Fallback", Width: 9},
		{Title: "Dropped", Width: 9},
		{Title: "Def-route", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorDeep).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(ColorAccent).
		Background(ColorDeep).
		Bold(false)
	t.SetStyles(s)

	return PoliciesModel{Backend: backend, Table: t}
}

type policiesLoadedMsg struct {
	policies []policy.Policy
	err      error
}

func (m PoliciesModel) Init() tea.Cmd {
	return func() tea.Msg {
		policies, err := m.Backend.ListPolicies()
		return policiesLoadedMsg{policies: policies, err: err}
	}
}

func (m PoliciesModel) Update(msg tea.Msg) (PoliciesModel, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case policiesLoadedMsg:
		m.Policies = msg.policies
		m.Err = msg.err
		rows := make([]table.Row, len(msg.policies))
		for i, p := range msg.policies {
			rows[i] = table.Row{
				fmt.Sprintf("%d", p.PolicyID),
				fmt.Sprintf("%d", p.ACLID),
				fmt.Sprintf("%d", p.RefCount),
				fmt.Sprintf("%d", p.Counters.Matched),
				fmt.Sprintf("%d", p.Counters.Applied),
				fmt.Sprintf("%d", p.Counters.Fallback),
				fmt.Sprintf("%d", p.Counters.Dropped),
				fmt.Sprintf("%d", p.Counters.DefaultRoute),
			}
		}
		m.Table.SetRows(rows)
	}
	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m PoliciesModel) View() string {
	if m.Err != nil {
		return StyleStateUnreach.Render(fmt.Sprintf("error: %v", m.Err))
	}
	if len(m.Policies) == 0 {
		return StyleSubtitle.Render("no policies configured")
	}
	return StyleCard.Render(m.Table.View())
}
