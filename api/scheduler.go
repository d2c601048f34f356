/*
scheduler.go - Automated renewal scheduler

PURPOSE:
  Periodically opens the renewal periods of every right with a yearly
  cycle, so requests find a period to be evaluated against. The next
  period is opened as soon as today is within the right's entry_date
  lead, so requests created ahead of a renewal can already use it.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Detects cyclic rights missing the current or the upcoming period
  - Edits each right through Store.UpdateRight, so a rule added at the
    same time by an author is never overwritten
  - Existing periods are never changed; running twice is a no-op

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRenewalScheduler(store, logger, recorder)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: AddRenewal endpoint (manual renewal)
  - generic/period.go: AnnualCycle
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/generic"
	"github.com/warp/absence-engine/logging"
	"github.com/warp/absence-engine/metrics"
)

// RightStore is what the scheduler reads and writes.
type RightStore interface {
	ListRights(ctx context.Context) ([]*absence.Right, error)
	UpdateRight(ctx context.Context, id generic.RightID, fn func(*absence.Right) error) (*absence.Right, error)
}

// RenewalScheduler opens yearly renewals as their start date passes.
type RenewalScheduler struct {
	Store         RightStore
	CheckInterval time.Duration
	Enabled       bool

	logger  *zap.Logger
	metrics *metrics.Recorder
	now     func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRenewalScheduler creates a new scheduler.
func NewRenewalScheduler(store RightStore, logger *zap.Logger, m *metrics.Recorder) *RenewalScheduler {
	return &RenewalScheduler{
		Store:         store,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		logger:        logging.OrNop(logger).Named("scheduler"),
		metrics:       m,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the scheduler.
func (rs *RenewalScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker.C, rs.stop)

	rs.logger.Info("started", zap.Duration("check_interval", rs.CheckInterval))
}

// Stop stops the scheduler and waits for a running check to finish.
func (rs *RenewalScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.logger.Info("stopped")
	}
}

func (rs *RenewalScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunNow(context.Background())

	for {
		select {
		case <-tick:
			rs.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// errNothingDue aborts an update that has no period to open.
var errNothingDue = errors.New("no renewal due")

// RunNow opens the missing renewals and returns how many were created.
func (rs *RenewalScheduler) RunNow(ctx context.Context) int {
	today := rs.now()

	rights, err := rs.Store.ListRights(ctx)
	if err != nil {
		rs.logger.Error("listing rights", zap.Error(err))
		return 0
	}

	created := 0
	for _, right := range rights {
		if right.Cycle == nil {
			continue
		}

		// The listed copy may be stale; due periods are computed again on
		// the right read inside the update.
		var opened []generic.Period
		_, err := rs.Store.UpdateRight(ctx, right.ID, func(current *absence.Right) error {
			var err error
			opened, err = current.OpenDueRenewals(today)
			if err == nil && len(opened) == 0 {
				return errNothingDue
			}
			return err
		})
		if errors.Is(err, errNothingDue) {
			continue
		}
		if err != nil {
			rs.logger.Error("opening renewal", zap.String("right", string(right.ID)), zap.Error(err))
			continue
		}

		for _, period := range opened {
			rs.metrics.RenewalCreated(string(right.ID))
			rs.logger.Info("renewal opened",
				zap.String("right", string(right.ID)),
				zap.Time("start", period.Start),
				zap.Time("end", period.End),
			)
		}
		created += len(opened)
	}

	if created > 0 {
		rs.logger.Info("check completed", zap.Int("created", created))
	}
	return created
}
