// Package quality is the (optional) Quality Tracker: per-link loss/delay/
// jitter counters updated by an external probe, used to mark a link
// administratively down or to filter labels by service-class tolerance.
package quality

import (
	"sync"

	"grimm.is/linkpath/internal/linkreg"
	"grimm.is/linkpath/internal/logging"
)

// QualitySetter is the narrow Link Registry surface the tracker updates.
type QualitySetter interface {
	QualitySet(ifIndex uint32, q linkreg.Quality) error
}

// LabelQualityLookup is the narrow Link Registry surface the tolerance
// filter reads from.
type LabelQualityLookup interface {
	LinkByLabel(label linkreg.Label) (linkreg.Link, bool)
}

// ServiceClass names a static RFC-4594-style traffic class.
type ServiceClass string

const (
	ClassRealtime     ServiceClass = "realtime"     // voice/video: tight loss+jitter budget
	ClassInteractive  ServiceClass = "interactive"   // interactive data
	ClassBulk         ServiceClass = "bulk"          // best-effort/bulk transfer
)

// Tolerance is the maximum acceptable loss/delay/jitter for a ServiceClass.
// Delay and jitter are in milliseconds, loss is a percentage.
type Tolerance struct {
	MaxLoss   float64
	MaxDelay  float64
	MaxJitter float64
}

// Table maps a ServiceClass to its Tolerance budget.
type Table = map[ServiceClass]Tolerance

// DefaultTable is the static service-class tolerance table (spec.md §4.8),
// modeled on common RFC 4594 per-hop-behavior budgets.
var DefaultTable = map[ServiceClass]Tolerance{
	ClassRealtime:    {MaxLoss: 1, MaxDelay: 150, MaxJitter: 30},
	ClassInteractive: {MaxLoss: 5, MaxDelay: 400, MaxJitter: 100},
	ClassBulk:        {MaxLoss: 20, MaxDelay: 2000, MaxJitter: 1000},
}

// Tracker is the Quality Tracker (spec.md §4.8). It holds no per-link
// state of its own beyond the service-class assignment used for
// filtering — loss/delay/jitter live on the Link itself, in the Link
// Registry, so the datapath-facing filter never needs a second lock.
type Tracker struct {
	links  QualitySetter
	lookup LabelQualityLookup
	table  map[ServiceClass]Tolerance

	classOfMu sync.RWMutex
	classOf   map[linkreg.Label]ServiceClass

	log *logging.Logger
}

// New builds a Tracker over the Link Registry. table may be nil to use
// DefaultTable.
func New(links QualitySetter, lookup LabelQualityLookup, table map[ServiceClass]Tolerance) *Tracker {
	if table == nil {
		table = DefaultTable
	}
	return &Tracker{
		links:   links,
		lookup:  lookup,
		table:   table,
		classOf: make(map[linkreg.Label]ServiceClass),
		log:     logging.WithComponent("quality"),
	}
}

// SetServiceClass assigns label's traffic class for tolerance filtering.
// Labels with no assigned class are never filtered.
func (t *Tracker) SetServiceClass(label linkreg.Label, class ServiceClass) {
	t.classOfMu.Lock()
	defer t.classOfMu.Unlock()
	t.classOf[label] = class
}

// Report applies a probe result for ifIndex (spec.md §4.8): loss == 100
// marks the link administratively down for policy purposes by clearing its
// reachable_map entry in the Link Registry (not admin_map — see the Open
// Question decision in SPEC_FULL.md §5.2).
func (t *Tracker) Report(ifIndex uint32, loss, delay, jitter float64) error {
	if err := t.links.QualitySet(ifIndex, linkreg.Quality{Loss: loss, Delay: delay, Jitter: jitter}); err != nil {
		return err
	}
	if loss >= 100 {
		t.log.Warn("link marked administratively down by quality probe", "interface_id", ifIndex, "loss", loss)
	}
	return nil
}

// Allowed implements decision.QualityFilter: label is skipped when its
// assigned service class's tolerance is exceeded by the link's current
// quality (spec.md §4.8). A label with no assigned class, or whose link is
// currently unknown, is always allowed — tolerance filtering is additive,
// never a substitute for reachability.
func (t *Tracker) Allowed(label linkreg.Label) bool {
	t.classOfMu.RLock()
	class, hasClass := t.classOf[label]
	t.classOfMu.RUnlock()
	if !hasClass {
		return true
	}
	tol, ok := t.table[class]
	if !ok {
		return true
	}
	link, ok := t.lookup.LinkByLabel(label)
	if !ok {
		return true
	}
	q := link.Quality
	return q.Loss <= tol.MaxLoss && q.Delay <= tol.MaxDelay && q.Jitter <= tol.MaxJitter
}
