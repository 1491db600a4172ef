package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/idprobe/internal/clock/system"
	"github.com/JakeFAU/idprobe/internal/progress"
)

// DefaultOuterStart is used when no valid start key is supplied.
const DefaultOuterStart = 1

// DriverConfig bounds the outer iteration.
type DriverConfig struct {
	// Start is the first outer key (inclusive, > 0).
	Start int
	// End is the last outer key (inclusive).
	End   int
	RunID [16]byte
}

// Summary describes a finished run.
type Summary struct {
	RunID        [16]byte
	OuterScanned int
	Discoveries  []string
	Cancelled    bool
	Elapsed      time.Duration
}

// Driver runs the scheduler once per outer key, one key at a time.
type Driver struct {
	scanner Scanner
	cfg     DriverConfig
	clock   Clock
	emitter progress.Emitter
	logger  *zap.Logger
}

// NewDriver constructs a Driver.
func NewDriver(scanner Scanner, cfg DriverConfig, clock Clock, emitter progress.Emitter, logger *zap.Logger) (*Driver, error) {
	if scanner == nil {
		return nil, errors.New("driver requires a scanner")
	}
	if cfg.Start <= 0 {
		return nil, fmt.Errorf("outer start must be > 0, got %d", cfg.Start)
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		scanner: scanner,
		cfg:     cfg,
		clock:   clock,
		emitter: emitter,
		logger:  logger,
	}, nil
}

// Run scans outer keys Start..End, checking ctx before each one. It never
// returns an error: per-probe failures are absorbed by the scheduler.
func (d *Driver) Run(ctx context.Context) Summary {
	start := d.clock.Now()
	summary := Summary{RunID: d.cfg.RunID}
	d.emit(progress.Event{Stage: progress.StageScanStart})

	for outer := d.cfg.Start; outer <= d.cfg.End; outer++ {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}
		res := d.scanner.Scan(ctx, outer)
		summary.OuterScanned++
		if res.Found {
			summary.Discoveries = append(summary.Discoveries, res.URL)
		}
		if res.Cancelled {
			summary.Cancelled = true
		}
	}
	if ctx.Err() != nil {
		summary.Cancelled = true
	}
	summary.Elapsed = d.clock.Now().Sub(start)

	note := "completed"
	if summary.Cancelled {
		note = "cancelled"
	}
	d.emit(progress.Event{Stage: progress.StageScanDone, Dur: summary.Elapsed, Note: note})
	d.logger.Info("scan finished",
		zap.Int("outer_scanned", summary.OuterScanned),
		zap.Int("discoveries", len(summary.Discoveries)),
		zap.Bool("cancelled", summary.Cancelled),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary
}

func (d *Driver) emit(evt progress.Event) {
	if d.emitter == nil {
		return
	}
	evt.RunID = d.cfg.RunID
	evt.TS = d.clock.Now()
	d.emitter.Emit(evt)
}
