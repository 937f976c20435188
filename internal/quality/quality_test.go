package quality

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/linkpath/internal/linkreg"
)

type fakeLinks struct {
	quality map[uint32]linkreg.Quality
	byLabel map[linkreg.Label]linkreg.Link
}

func newFakeLinks() *fakeLinks {
	return &fakeLinks{quality: make(map[uint32]linkreg.Quality), byLabel: make(map[linkreg.Label]linkreg.Link)}
}

func (f *fakeLinks) QualitySet(ifIndex uint32, q linkreg.Quality) error {
	f.quality[ifIndex] = q
	for label, link := range f.byLabel {
		if link.InterfaceID == ifIndex {
			link.Quality = q
			f.byLabel[label] = link
		}
	}
	return nil
}

func (f *fakeLinks) LinkByLabel(label linkreg.Label) (linkreg.Link, bool) {
	l, ok := f.byLabel[label]
	return l, ok
}

func TestReportPropagatesToLinkRegistry(t *testing.T) {
	links := newFakeLinks()
	links.byLabel[10] = linkreg.Link{InterfaceID: 1, Label: 10}
	tr := New(links, links, nil)

	require.NoError(t, tr.Report(1, 2, 30, 5))
	assert.Equal(t, 2.0, links.quality[1].Loss)
}

// This is the Open Question #2 test: loss==100 is only ever observed
// through the Link Registry's own reachable_map invalidation (exercised in
// linkreg's tests); here we confirm the Quality Tracker itself never
// touches anything beyond QualitySet — it has no admin_map concept at all.
func TestReportDoesNotPanicOnTotalLoss(t *testing.T) {
	links := newFakeLinks()
	tr := New(links, links, nil)
	assert.NoError(t, tr.Report(1, 100, 0, 0))
}

func TestAllowedWithNoAssignedClassIsAlwaysTrue(t *testing.T) {
	links := newFakeLinks()
	tr := New(links, links, nil)
	assert.True(t, tr.Allowed(10))
}

func TestAllowedFiltersByServiceClassTolerance(t *testing.T) {
	links := newFakeLinks()
	links.byLabel[10] = linkreg.Link{InterfaceID: 1, Label: 10, Quality: linkreg.Quality{Loss: 50, Delay: 50, Jitter: 5}}
	tr := New(links, links, nil)
	tr.SetServiceClass(10, ClassRealtime)

	assert.False(t, tr.Allowed(10), "50%% loss exceeds realtime's 1%% tolerance")

	links.byLabel[10] = linkreg.Link{InterfaceID: 1, Label: 10, Quality: linkreg.Quality{Loss: 0, Delay: 10, Jitter: 1}}
	assert.True(t, tr.Allowed(10))
}

func TestAllowedTrueWhenLinkUnknown(t *testing.T) {
	links := newFakeLinks()
	tr := New(links, links, nil)
	tr.SetServiceClass(99, ClassBulk)
	assert.True(t, tr.Allowed(99))
}

// Datapath reads of Allowed and control-plane writes via SetServiceClass
// happen concurrently in the real engine; classOf must survive -race.
func TestSetServiceClassConcurrentWithAllowed(t *testing.T) {
	links := newFakeLinks()
	links.byLabel[10] = linkreg.Link{InterfaceID: 1, Label: 10}
	tr := New(links, links, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.SetServiceClass(10, ClassRealtime)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Allowed(10)
		}
	}()
	wg.Wait()
}
