package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"grimm.is/linkpath/internal/linkreg"
)

// LinksModel renders the Link Registry's current state in a bubbles/table,
// the same component and styling shape as the teacher's FlowsModel
// (internal/tui/flows.go).
type LinksModel struct {
	Backend Backend
	Table   table.Model
	Links   []linkreg.Link
	Err     error
}

func NewLinksModel(backend Backend) LinksModel {
	columns := []table.Column{
		{Title: "Ifindex", Width: 8},
		{Title: "Label", Width: 6},
		{Title: "Fam", Width: 4},
		{Title: "State", Width: 12},
		{Title: "Loss %", Width: 8},
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

	return LinksModel{Backend: backend, Table: t}
}

type linksLoadedMsg struct {
	links []linkreg.Link
	err   error
}

func (m LinksModel) Init() tea.Cmd {
	return func() tea.Msg {
		links, err := m.Backend.ListLinks()
		return linksLoadedMsg{links: links, err: err}
	}
}

func (m LinksModel) Update(msg tea.Msg) (LinksModel, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case linksLoadedMsg:
		m.Links = msg.links
		m.Err = msg.err
		rows := make([]table.Row, len(msg.links))
		for i, l := range msg.links {
			rows[i] = table.Row{
				fmt.Sprintf("%d", l.InterfaceID),
				fmt.Sprintf("%d", l.Label),
				familyString(l.Family),
				l.State.String(),
				fmt.Sprintf("%.1f", l.Quality.Loss),
			}
		}
		m.Table.SetRows(rows)
	}
	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m LinksModel) View() string {
	if m.Err != nil {
		return StyleStateUnreach.Render(fmt.Sprintf("error: %v", m.Err))
	}
	if len(m.Links) == 0 {
		return StyleSubtitle.Render("no links registered")
	}
	return StyleCard.Render(m.Table.View())
}

func familyString(f linkreg.Family) string {
	if f == linkreg.V6 {
		return "v6"
	}
	return "v4"
}
