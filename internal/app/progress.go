package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bft-labs/casebatch/internal/ports"
)

// DefaultProgressInterval is how often progress is reported.
const DefaultProgressInterval = 10 * time.Second

// ProgressReporter periodically writes a progress line built from the store
// counts. It is read-only and best effort: a failed count is logged and the
// line skipped.
type ProgressReporter struct {
	source   ports.ProgressSource
	out      io.Writer
	interval time.Duration
	logger   ports.Logger
	now      func() time.Time
}

// NewProgressReporter creates a reporter writing to out every interval.
func NewProgressReporter(source ports.ProgressSource, out io.Writer, interval time.Duration, logger ports.Logger) *ProgressReporter {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &ProgressReporter{
		source:   source,
		out:      out,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run reports every interval until ctx is cancelled. It always returns nil.
func (p *ProgressReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = p.Report(ctx)
		}
	}
}

// Report writes a single progress line.
func (p *ProgressReporter) Report(ctx context.Context) error {
	counts, err := p.source.Counts(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("progress count failed", ports.Err(err))
		}
		return err
	}

	if _, err := fmt.Fprintf(p.out, "%s %s\n", p.now().Format(time.RFC1123), counts); err != nil {
		p.logger.Warn("progress write failed", ports.Err(err))
		return err
	}
	return nil
}
