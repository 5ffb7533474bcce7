package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/calroth/questboard/internal/store"
)

// Exclusions this old predate anything materialization could recreate.
const exclusionRetention = 90 * 24 * time.Hour

// Daily is the once-a-day commit loop. It sleeps until the configured hour
// in the configured timezone, runs one commit pass, and goes back to sleep.
// It is the only caller of Materializer.Commit in the process.
type Daily struct {
	mu         sync.RWMutex
	mat        *Materializer
	exclusions *store.ExclusionStore
	hour       int
	loc        *time.Location
	logger     *slog.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewDaily(mat *Materializer, exclusions *store.ExclusionStore, hour int, loc *time.Location, logger *slog.Logger) *Daily {
	if hour < 0 || hour > 23 {
		hour = 0
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Daily{
		mat:        mat,
		exclusions: exclusions,
		hour:       hour,
		loc:        loc,
		logger:     logger,
	}
}

// Start begins the loop.
func (d *Daily) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		for {
			wait := time.Until(d.nextRun(time.Now().In(d.loc)))
			d.logger.Info("daily commit scheduled", "in", wait.Round(time.Second))

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				d.runOnce()
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (d *Daily) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	done := d.done
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// nextRun returns the next wall-clock occurrence of the configured hour
// strictly after now.
func (d *Daily) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), d.hour, 0, 0, 0, d.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// runOnce performs a single commit pass. A failure is logged and deferred to
// the next scheduled tick; the loop never terminates the process.
func (d *Daily) runOnce() {
	today := time.Now().In(d.loc)

	if err := d.mat.Commit(today); err != nil {
		d.logger.Error("daily commit failed", "error", err)
		return
	}

	if n, err := d.exclusions.DeleteOlderThan(today.Add(-exclusionRetention)); err != nil {
		d.logger.Error("exclusion cleanup failed", "error", err)
	} else if n > 0 {
		d.logger.Info("cleaned up old exclusions", "count", n)
	}

	d.logger.Info("daily commit finished", "date", DateOf(today).Format("2006-01-02"))
}
