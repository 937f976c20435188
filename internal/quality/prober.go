package quality

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"grimm.is/linkpath/internal/clock"
	"grimm.is/linkpath/internal/logging"
)

// ProbeTarget names what to actively probe for a given link.
type ProbeTarget struct {
	InterfaceID uint32
	Address     string // IP or hostname pro-bing resolves
}

// Prober actively probes each configured link with ICMP (via pro-bing,
// replacing the teacher's exec.Command("ping", ...) fallback in
// network/uplink.go's UplinkHealthChecker with a native prober) and
// reports loss/RTT/jitter into a Tracker.
type Prober struct {
	tracker *Tracker
	log     *logging.Logger

	interval time.Duration
	count    int
	clock    clock.Clock
}

// NewProber builds a Prober that reports into tracker every interval,
// sending count pings per round.
func NewProber(tracker *Tracker, interval time.Duration, count int, clk clock.Clock) *Prober {
	if clk == nil {
		clk = &clock.RealClock{}
	}
	return &Prober{tracker: tracker, interval: interval, count: count, clock: clk, log: logging.WithComponent("quality.prober")}
}

// Run probes every target once per interval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context, targets []ProbeTarget) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, target := range targets {
				p.probeOnce(target)
			}
		}
	}
}

func (p *Prober) probeOnce(target ProbeTarget) {
	pinger, err := probing.NewPinger(target.Address)
	if err != nil {
		p.log.Warn("prober: bad target", "interface_id", target.InterfaceID, "address", target.Address, "error", err)
		return
	}
	pinger.Count = p.count
	pinger.Timeout = p.interval
	pinger.SetPrivileged(true)

	if err := pinger.Run(); err != nil {
		p.log.Warn("prober: ping run failed, treating as total loss", "interface_id", target.InterfaceID, "error", err)
		_ = p.tracker.Report(target.InterfaceID, 100, 0, 0)
		return
	}

	stats := pinger.Statistics()
	loss := stats.PacketLoss
	delayMs := float64(stats.AvgRtt) / float64(time.Millisecond)
	jitterMs := float64(stats.StdDevRtt) / float64(time.Millisecond)

	if err := p.tracker.Report(target.InterfaceID, loss, delayMs, jitterMs); err != nil {
		p.log.Warn("prober: report failed", "interface_id", target.InterfaceID, "error", err)
	}
}
