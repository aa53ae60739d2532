package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
}

// CronScheduler runs jobs on five field cron specs. A run is skipped while
// the previous run of the same job is still in progress.
type CronScheduler struct {
	cron *cron.Cron

	mu   sync.Mutex
	jobs map[string]*guardedJob
	ctx  context.Context
}

type guardedJob struct {
	job     Job
	spec    string
	running atomic.Bool
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron: cron.New(cron.WithParser(parser)),
		jobs: make(map[string]*guardedJob),
		ctx:  context.Background(),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	logger := logutil.GetLogger(context.Background()).With(zap.String("job", job.Name()), zap.String("spec", spec))
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.jobs[job.Name()]; ok {
		return fmt.Errorf("job %s already scheduled", job.Name())
	}
	g := &guardedJob{job: job, spec: spec}
	if _, err := c.cron.AddFunc(spec, func() { c.run(c.context(), g) }); err != nil {
		logger.Error("schedule job failed", zap.Error(err))
		return err
	}
	c.jobs[job.Name()] = g
	logger.Info("job scheduled")
	return nil
}

// RunNow triggers a scheduled job outside its cron spec and reports whether
// it actually ran.
func (c *CronScheduler) RunNow(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	g, ok := c.jobs[name]
	c.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("job %s not scheduled", name)
	}
	return c.run(ctx, g)
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.cron.Start()
}

func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

func (c *CronScheduler) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *CronScheduler) run(ctx context.Context, g *guardedJob) (bool, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("job", g.job.Name()), zap.String("spec", g.spec))
	if !g.running.CompareAndSwap(false, true) {
		logger.Info("job skipped: still running")
		return false, nil
	}
	defer g.running.Store(false)
	start := time.Now()
	err := g.job.Run(ctx)
	if err != nil {
		logger.Error("job finished", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return true, err
	}
	logger.Debug("job finished", zap.Duration("duration", time.Since(start)))
	return true, nil
}
