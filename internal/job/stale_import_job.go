package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const defaultStaleAfter = 2 * time.Hour

type staleFailer interface {
	FailStale(ctx context.Context, staleAfter time.Duration) (int64, error)
}

// StaleImportJob fails import jobs left pending or running by a crashed
// process so polling clients see a terminal status. Jobs are never deleted.
type StaleImportJob struct {
	jobs       staleFailer
	staleAfter time.Duration
}

func NewStaleImportJob(jobs staleFailer, staleAfter time.Duration) *StaleImportJob {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &StaleImportJob{jobs: jobs, staleAfter: staleAfter}
}

func (j *StaleImportJob) Name() string {
	return "stale_import_reaper"
}

func (j *StaleImportJob) Run(ctx context.Context) error {
	n, err := j.jobs.FailStale(ctx, j.staleAfter)
	if err != nil {
		return err
	}
	if n > 0 {
		logutil.GetLogger(ctx).Warn("stale import jobs marked failed",
			zap.Int64("count", n), zap.Duration("stale_after", j.staleAfter))
	}
	return nil
}
