package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/linkpath/internal/linkreg"
)

func TestParseActionOrderedSingleGroup(t *testing.T) {
	src := `
action {
  fallback = "drop"
  group "g0" {
    labels = [10, 20]
  }
}
`
	a, err := ParseAction("test.hcl", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, FallbackDrop, a.Fallback)
	assert.Equal(t, Ordered, a.GroupSelection)
	require.Len(t, a.Groups, 1)
	assert.Equal(t, []linkreg.Label{10, 20}, a.Groups[0].Labels)
}

func TestParseActionRandomGroupSelection(t *testing.T) {
	src := `
action {
  select_group = "random"
  group "g0" {
    selection = "random"
    labels    = [1, 2, 3]
  }
  group "g1" {
    labels = [4]
  }
}
`
	a, err := ParseAction("test.hcl", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, Random, a.GroupSelection)
	require.Len(t, a.Groups, 2)
	assert.Equal(t, Random, a.Groups[0].LinkSelection)
	assert.Equal(t, Ordered, a.Groups[1].LinkSelection)
}

func TestParseActionRejectsLabelOutOfRange(t *testing.T) {
	src := `
action {
  group "g0" {
    labels = [255]
  }
}
`
	_, err := ParseAction("test.hcl", []byte(src))
	assert.Error(t, err)
}

func TestParseActionRejectsBadFallback(t *testing.T) {
	src := `
action {
  fallback = "explode"
  group "g0" { labels = [1] }
}
`
	_, err := ParseAction("test.hcl", []byte(src))
	assert.Error(t, err)
}
