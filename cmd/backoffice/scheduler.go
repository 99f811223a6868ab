package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/verone/backoffice/internal/banking"
	"github.com/verone/backoffice/internal/logger"
	"github.com/verone/backoffice/internal/matching"
)

const jobTimeout = 15 * time.Minute

// syncAndApply imports new bank transactions, then classifies them with the
// enabled matching rules. Rules are not applied when the sync fails.
func syncAndApply(ctx context.Context, bank banking.Service, rules matching.Service) error {
	if _, err := bank.SyncTransactions(ctx, time.Time{}); err != nil {
		return err
	}
	result, err := rules.ApplyAllRules(ctx)
	if err != nil {
		return err
	}
	logger.L.Info("matching rules applied",
		"rules", result.RulesApplied, "classified", result.ExpensesClassified, "failed", result.FailedRules)
	return nil
}

// StartScheduler runs syncAndApply on the given cron schedule until ctx ends.
// It returns a nil scheduler when bank sync is not configured.
func StartScheduler(ctx context.Context, schedule string, bank banking.Service, rules matching.Service) (*cron.Cron, error) {
	if !bank.SyncEnabled() {
		logger.L.Warn("bank sync is not configured, scheduler not started")
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		if err := syncAndApply(jobCtx, bank, rules); err != nil {
			logger.L.Error("scheduled bank sync failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	logger.L.Info("scheduler started", "schedule", schedule)
	return c, nil
}
