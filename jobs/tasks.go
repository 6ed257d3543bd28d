package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBalanceIntegrity sweeps every cash account comparing the cached
	// balance against its journal sum.
	TaskBalanceIntegrity = "finance:balance_integrity"
	// TaskBalanceRecompute rewrites one account's cached balance.
	TaskBalanceRecompute = "finance:balance_recompute"
)

// BalanceIntegrityPayload configures an integrity sweep.
type BalanceIntegrityPayload struct {
	Fix bool `json:"fix"`
}

// NewBalanceIntegrityTask constructs an integrity sweep task.
func NewBalanceIntegrityTask(payload BalanceIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalanceIntegrity, data), nil
}

// BalanceRecomputePayload names the account to recompute.
type BalanceRecomputePayload struct {
	AccountID string `json:"account_id"`
}

// NewBalanceRecomputeTask constructs a single-account recompute task.
func NewBalanceRecomputeTask(payload BalanceRecomputePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalanceRecompute, data), nil
}
