package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/redis"
)

const (
	defaultVendorConcurrency = 4
	defaultVendorLockTTL     = 5 * time.Minute
)

// VendorLock serialises passes for one vendor across replicas.
// Obtain returns redis.ErrLockNotObtained when another replica holds it.
type VendorLock interface {
	Obtain(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

type processor interface {
	VendorsDue(ctx context.Context, asOf time.Time) ([]uuid.UUID, error)
	ProcessEligibleCredits(ctx context.Context, vendorID uuid.UUID, asOf time.Time) (*Result, error)
}

// Summary aggregates one scheduler run.
type Summary struct {
	Vendors        int
	SkippedVendors int
	CreditedLines  int
	TotalCredited  decimal.Decimal
}

// SchedulerParams wires the scheduler.
type SchedulerParams struct {
	Processor   processor
	Lock        VendorLock
	Logger      *logger.Logger
	Concurrency int
	LockTTL     time.Duration
}

// Scheduler fans vendor passes out with bounded parallelism. A vendor never
// has two passes in flight: singleflight covers this process and the vendor
// lock covers other replicas.
type Scheduler struct {
	proc        processor
	lock        VendorLock
	logg        *logger.Logger
	concurrency int
	lockTTL     time.Duration
	group       singleflight.Group
}

// NewScheduler builds a scheduler. Lock may be nil for single-replica setups.
func NewScheduler(p SchedulerParams) (*Scheduler, error) {
	if p.Processor == nil {
		return nil, fmt.Errorf("settlement processor required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = defaultVendorConcurrency
	}
	ttl := p.LockTTL
	if ttl <= 0 {
		ttl = defaultVendorLockTTL
	}
	return &Scheduler{
		proc:        p.Processor,
		lock:        p.Lock,
		logg:        p.Logger,
		concurrency: concurrency,
		lockTTL:     ttl,
	}, nil
}

// RunOnce settles every vendor due at asOf. Failures for one vendor do not
// stop the others; they are combined into the returned error.
func (s *Scheduler) RunOnce(ctx context.Context, asOf time.Time) (Summary, error) {
	summary := Summary{TotalCredited: decimal.Zero}
	vendors, err := s.proc.VendorsDue(ctx, asOf)
	if err != nil {
		return summary, err
	}
	summary.Vendors = len(vendors)

	var (
		mu   sync.Mutex
		errs error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, vendorID := range vendors {
		g.Go(func() error {
			result, skipped, err := s.RunVendor(gctx, vendorID, asOf)
			mu.Lock()
			defer mu.Unlock()
			if skipped {
				summary.SkippedVendors++
			}
			if result != nil {
				summary.CreditedLines += result.CreditedLineCount
				summary.TotalCredited = summary.TotalCredited.Add(result.TotalCredited)
			}
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("vendor %s: %w", vendorID, err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = multierr.Append(errs, err)
	}
	return summary, errs
}

// RunVendor settles one vendor. skipped is true when another pass for the
// vendor is already running elsewhere.
func (s *Scheduler) RunVendor(ctx context.Context, vendorID uuid.UUID, asOf time.Time) (*Result, bool, error) {
	leader := false
	v, err, _ := s.group.Do(vendorID.String(), func() (any, error) {
		leader = true
		return s.runLocked(ctx, vendorID, asOf)
	})
	if !leader {
		return nil, true, nil
	}
	if errors.Is(err, redis.ErrLockNotObtained) {
		s.logg.Info(s.logg.WithVendorID(ctx, vendorID.String()), "settlement.vendor_locked")
		return nil, true, nil
	}
	result, _ := v.(*Result)
	return result, false, err
}

func (s *Scheduler) runLocked(ctx context.Context, vendorID uuid.UUID, asOf time.Time) (*Result, error) {
	if s.lock == nil {
		return s.proc.ProcessEligibleCredits(ctx, vendorID, asOf)
	}
	release, err := s.lock.Obtain(ctx, "settlement:"+vendorID.String(), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(s.logg.WithVendorID(ctx, vendorID.String()), "settlement.lock_release_failed", relErr)
		}
	}()
	return s.proc.ProcessEligibleCredits(ctx, vendorID, asOf)
}
