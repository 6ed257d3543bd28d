package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/pesantren-erp/pesantren-erp/internal/finance/reconcile"
)

// BalanceIntegrityJob sweeps every cash account and reports or repairs drift
// between the cached balance column and the journal sum.
type BalanceIntegrityJob struct {
	Engine *reconcile.Engine
	Logger *slog.Logger
	clock  func() time.Time
}

// NewBalanceIntegrityJob initialises the integrity sweep handler.
func NewBalanceIntegrityJob(engine *reconcile.Engine, logger *slog.Logger) *BalanceIntegrityJob {
	return &BalanceIntegrityJob{
		Engine: engine,
		Logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the integrity sweep.
func (j *BalanceIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil {
		return errors.New("balance integrity: handler not configured")
	}
	var payload BalanceIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.clock()
	logger := j.logger().With(slog.Bool("fix", payload.Fix))
	logger.Info("starting balance integrity sweep")

	drifts, err := j.Engine.VerifyAll(ctx, payload.Fix)
	if err != nil {
		logger.Error("sweep failed", slog.Any("error", err))
		return err
	}
	for _, d := range drifts {
		logger.Warn("balance drift detected",
			slog.String("account_id", d.AccountID.String()),
			slog.String("recorded", d.Recorded.String()),
			slog.String("computed", d.Computed.String()),
		)
	}
	logger.Info("completed balance integrity sweep",
		slog.Int("drifts", len(drifts)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *BalanceIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// BalanceRecomputeJob rewrites a single account's cached balance.
type BalanceRecomputeJob struct {
	Engine *reconcile.Engine
	Logger *slog.Logger
}

// NewBalanceRecomputeJob initialises the recompute handler.
func NewBalanceRecomputeJob(engine *reconcile.Engine, logger *slog.Logger) *BalanceRecomputeJob {
	return &BalanceRecomputeJob{Engine: engine, Logger: logger}
}

// Handle executes the recompute.
func (j *BalanceRecomputeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Engine == nil {
		return errors.New("balance recompute: handler not configured")
	}
	var payload BalanceRecomputePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	accountID, err := uuid.Parse(payload.AccountID)
	if err != nil {
		return asynq.SkipRetry
	}
	balance, err := j.Engine.Recompute(ctx, accountID)
	if err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("balance recomputed",
			slog.String("account_id", accountID.String()),
			slog.String("balance", balance.String()),
		)
	}
	return nil
}
