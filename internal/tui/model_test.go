package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/linkpath/internal/attach"
	"grimm.is/linkpath/internal/linkreg"
	"grimm.is/linkpath/internal/policy"
)

type fakeBackend struct {
	links    []linkreg.Link
	policies []policy.Policy
}

func (f *fakeBackend) ListLinks() ([]linkreg.Link, error)       { return f.links, nil }
func (f *fakeBackend) ListPolicies() ([]policy.Policy, error)   { return f.policies, nil }
func (f *fakeBackend) ListAttachments(uint32, linkreg.Family) ([]attach.Attachment, error) {
	return nil, nil
}

func TestModelInitLoadsLinksAndPolicies(t *testing.T) {
	backend := &fakeBackend{
		links:    []linkreg.Link{{InterfaceID: 1, Label: 10, Family: linkreg.V4}},
		policies: []policy.Policy{{PolicyID: 1, ACLID: 100}},
	}
	m := NewModel(backend)
	cmd := m.Init()
	require.NotNil(t, cmd)

	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	require.True(t, ok)
	require.Len(t, batch, 2)

	for _, c := range batch {
		updated, _ := m.Update(c())
		m = updated.(Model)
	}

	assert.Len(t, m.Links.Links, 1)
	assert.Len(t, m.Policies.Policies, 1)
}

func TestModelTabCyclesViews(t *testing.T) {
	m := NewModel(&fakeBackend{})
	assert.Equal(t, ViewLinks, m.ActiveView)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(Model)
	assert.Equal(t, ViewPolicies, m.ActiveView)
}

func TestModelQuitsOnQ(t *testing.T) {
	m := NewModel(&fakeBackend{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestLinksViewRendersEmptyState(t *testing.T) {
	m := NewLinksModel(&fakeBackend{})
	assert.Contains(t, m.View(), "no links registered")
}
