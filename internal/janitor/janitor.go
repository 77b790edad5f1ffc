// Package janitor runs the periodic maintenance the stores leave to their
// callers: event retention and expired mono context.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ent0n29/companion/internal/eventlog"
)

const defaultInterval = 10 * time.Minute

type EventPruner interface {
	Cleanup(retentionDays int) (eventlog.CleanupResult, error)
}

type MonoSweeper interface {
	SweepExpiredMono() (int, error)
}

type Janitor struct {
	events        EventPruner
	mono          MonoSweeper
	retentionDays int
	log           *slog.Logger
}

// Result summarizes one maintenance pass.
type Result struct {
	Events      eventlog.CleanupResult
	MonoRemoved int
}

func New(events EventPruner, mono MonoSweeper, retentionDays int, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		events:        events,
		mono:          mono,
		retentionDays: retentionDays,
		log:           logger.With("component", "janitor"),
	}
}

// RunOnce performs a single pass. Both sweeps run even if the first fails.
func (j *Janitor) RunOnce() (Result, error) {
	var (
		res  Result
		errs []error
	)
	if j.events != nil {
		cleaned, err := j.events.Cleanup(j.retentionDays)
		if err != nil {
			errs = append(errs, err)
		}
		res.Events = cleaned
	}
	if j.mono != nil {
		removed, err := j.mono.SweepExpiredMono()
		if err != nil {
			errs = append(errs, err)
		}
		res.MonoRemoved = removed
	}
	return res, errors.Join(errs...)
}

// Start runs RunOnce every interval until ctx is done.
func (j *Janitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := j.RunOnce()
				if err != nil {
					j.log.Error("maintenance pass failed", "err", err)
					continue
				}
				j.log.Debug("maintenance pass done",
					"raw_removed", res.Events.RawRemoved,
					"audited_removed", res.Events.AuditedRemoved,
					"mono_removed", res.MonoRemoved,
				)
			}
		}
	}()
}
