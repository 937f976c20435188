//go:build linux

package datapath

import (
	"context"
	"fmt"

	"github.com/florianl/go-nflog/v2"

	"grimm.is/linkpath/internal/logging"
)

// NflogTraceSink subscribes to a kernel NFLOG group and, each time the
// group delivers a packet, writes the most recent Trace entry to its logger
// at Debug level. It runs apart from and never blocks the inline NFQUEUE
// verdict path (spec.md §3 domain stack: nflog is async trace emission,
// nfqueue is the verdict loop).
type NflogTraceSink struct {
	groupNum uint16
	log      *logging.Logger
}

// NewNflogTraceSink builds a sink bound to an NFLOG group number.
func NewNflogTraceSink(groupNum uint16) *NflogTraceSink {
	return &NflogTraceSink{groupNum: groupNum, log: logging.WithComponent("datapath.nflog")}
}

// Run opens the NFLOG group and logs the latest entry of trace each time
// the group delivers a packet, until ctx is cancelled. This never runs on the packet hot
// path: Trace.Record already happened synchronously and cheaply; this
// drains it asynchronously for external consumption.
func (s *NflogTraceSink) Run(ctx context.Context, trace *Trace) error {
	cfg := nflog.Config{
		Group:    s.groupNum,
		Copymode: nflog.NfUlnlCopyPacket,
	}

	nf, err := nflog.Open(&cfg)
	if err != nil {
		return fmt.Errorf("datapath: open nflog group %d: %w", s.groupNum, err)
	}
	defer nf.Close()

	fn := func(a nflog.Attribute) int {
		// The real payload is the packet nflog captured; we don't re-parse
		// it here, we just use this callback's liveness as a ticker to
		// flush the most recent trace entries out to the logger.
		for _, e := range trace.Last(1) {
			s.log.Debug("trace", "rx_interface_id", e.RXInterfaceID, "next_node", e.NextNode, "adj_id", e.AdjID, "reason", e.Reason)
		}
		return 0
	}

	if err := nf.RegisterWithErrorFunc(ctx, fn, func(err error) int {
		s.log.Warn("nflog error", "error", err)
		return 0
	}); err != nil {
		return fmt.Errorf("datapath: register nflog callback: %w", err)
	}

	<-ctx.Done()
	return nil
}
