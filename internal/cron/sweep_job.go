package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brightpath-io/activity-sync/internal/sync"
	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

const (
	sweepJobName      = "stale-record-sweep"
	defaultStaleAfter = 15 * time.Minute
)

type synchronizer interface {
	Synchronize(ctx context.Context, code, correlationID string, isNewHint bool) (sync.Result, error)
}

type retryableLister interface {
	ListRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, afterCode string, limit int) ([]models.Activity, error)
}

type configSource interface {
	GetDefault(ctx context.Context) (*models.IntegrationConfig, error)
}

// SweepJobParams configure the stale-record sweep.
type SweepJobParams struct {
	Records      retryableLister
	Configs      configSource
	Orchestrator synchronizer
	Logger       *logger.Logger
	PageSize     int
	// StaleAfter is the grace interval before a pending or reprocessing
	// record counts as stranded and gets re-driven.
	StaleAfter time.Duration
}

// SweepJob re-drives records stuck in a non-terminal status: error records
// with retry budget left, plus pending or reprocessing records that sat past
// the stale grace interval after a dropped deferred job, a restart that lost
// the in-memory queue, or a crash mid-attempt. Error records that exhausted
// the configured attempt budget are skipped; they need a forced retry. Each
// record gets a fresh correlation id and its failure never stops the sweep,
// unless the integration's circuit breaker trips on consecutive failures.
type SweepJob struct {
	records      retryableLister
	configs      configSource
	orchestrator synchronizer
	logg         *logger.Logger
	pageSize     int
	staleAfter   time.Duration
}

// NewSweepJob builds the sweep job.
func NewSweepJob(params SweepJobParams) (*SweepJob, error) {
	if params.Records == nil {
		return nil, fmt.Errorf("records lister required")
	}
	if params.Configs == nil {
		return nil, fmt.Errorf("config source required")
	}
	if params.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &SweepJob{
		records:      params.Records,
		configs:      params.Configs,
		orchestrator: params.Orchestrator,
		logg:         params.Logger,
		pageSize:     pageSize,
		staleAfter:   staleAfter,
	}, nil
}

// Name identifies the job in logs and metrics.
func (j *SweepJob) Name() string { return sweepJobName }

// Run walks the retryable set in code order and re-invokes the orchestrator
// for each record. Keying the pages on the last code seen keeps the walk
// stable while retries move rows in and out of the set.
func (j *SweepJob) Run(ctx context.Context) error {
	cfg, err := j.configs.GetDefault(ctx)
	if err != nil {
		return fmt.Errorf("load default config: %w", err)
	}

	staleBefore := time.Now().UTC().Add(-j.staleAfter)
	var swept, failed, streak int
	afterCode := ""
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		page, err := j.records.ListRetryable(ctx, cfg.MaxAttempts, staleBefore, afterCode, j.pageSize)
		if err != nil {
			return fmt.Errorf("list retryable records: %w", err)
		}
		if len(page) == 0 {
			break
		}
		afterCode = page[len(page)-1].Code

		for _, record := range page {
			swept++
			correlationID := uuid.NewString()
			if _, err := j.orchestrator.Synchronize(ctx, record.Code, correlationID, false); err != nil {
				failed++
				streak++
				recCtx := j.logg.WithCorrelationID(j.logg.WithActivityCode(ctx, record.Code), correlationID)
				j.logg.Warn(recCtx, "sweep retry failed, record left for the next pass")
				if cfg.CircuitBreakerEnabled && streak >= cfg.CircuitBreakerLimit {
					j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
						"swept":  swept,
						"failed": failed,
					}), "circuit breaker tripped, aborting sweep early")
					return fmt.Errorf("circuit breaker tripped after %d consecutive failures", streak)
				}
			} else {
				streak = 0
			}
		}

		if len(page) < j.pageSize {
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"swept":  swept,
		"failed": failed,
	}), "stale-record sweep finished")
	return nil
}
