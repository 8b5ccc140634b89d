package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketledger-backend/internal/settlement"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

type settlementRunner interface {
	RunOnce(ctx context.Context, asOf time.Time) (settlement.Summary, error)
}

// SettlementJobParams configure the wallet settlement job.
type SettlementJobParams struct {
	Logger    *logger.Logger
	Scheduler settlementRunner
	Clock     func() time.Time
}

// NewSettlementJob builds the job that credits vendor wallets for delivered
// orders past their hold period.
func NewSettlementJob(params SettlementJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Scheduler == nil {
		return nil, fmt.Errorf("settlement scheduler required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &settlementJob{logg: params.Logger, scheduler: params.Scheduler, now: clock}, nil
}

type settlementJob struct {
	logg      *logger.Logger
	scheduler settlementRunner
	now       func() time.Time
}

func (j *settlementJob) Name() string { return "wallet-settlement" }

func (j *settlementJob) Run(ctx context.Context) error {
	asOf := j.now()
	summary, err := j.scheduler.RunOnce(ctx, asOf)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"as_of":           asOf,
		"vendors":         summary.Vendors,
		"vendors_skipped": summary.SkippedVendors,
		"lines_credited":  summary.CreditedLines,
		"total_credited":  summary.TotalCredited.String(),
	})
	if err != nil {
		return fmt.Errorf("wallet settlement: %w", err)
	}
	j.logg.Info(logCtx, "settlement.run_completed")
	return nil
}
