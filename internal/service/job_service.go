package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/xxxsen/noteimport/internal/model"
	appErr "github.com/xxxsen/noteimport/internal/pkg/errors"
	"github.com/xxxsen/noteimport/internal/pkg/timeutil"
)

const (
	defaultJobListLimit = 20
	maxJobListLimit     = 100

	InterruptedMessage = "import interrupted"
)

type JobService struct {
	jobs JobStore
}

func NewJobService(jobs JobStore) *JobService {
	return &JobService{jobs: jobs}
}

func (s *JobService) Get(ctx context.Context, userID, jobID string) (*model.ImportJob, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, appErr.ErrNotFound
	}
	return s.jobs.Get(ctx, userID, jobID)
}

// List returns the newest jobs of a user first.
func (s *JobService) List(ctx context.Context, userID string, limit int) ([]model.ImportJob, error) {
	if limit <= 0 {
		limit = defaultJobListLimit
	}
	if limit > maxJobListLimit {
		limit = maxJobListLimit
	}
	return s.jobs.ListByUser(ctx, userID, limit)
}

// FailStale marks jobs that made no progress for staleAfter as failed.
func (s *JobService) FailStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	now := timeutil.NowUnix()
	cutoff := now - int64(staleAfter/time.Second)
	return s.jobs.FailStale(ctx, cutoff, InterruptedMessage, now)
}

// Progress is the processed share of a job in percent, 0 while the total is
// unknown or zero.
func Progress(job *model.ImportJob) int {
	if job == nil || job.TotalNotes == nil || *job.TotalNotes <= 0 {
		return 0
	}
	pct := int(math.Round(100 * float64(job.Processed()) / float64(*job.TotalNotes)))
	if pct > 100 {
		return 100
	}
	return pct
}
