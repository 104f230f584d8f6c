package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "tcsched/internal/log"
)

// DefaultTimeout bounds one refresh run.
const DefaultTimeout = 2 * time.Minute

// Reloader rereads a teacher source. teacher.Cache and the directories
// implement it.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Runner refreshes the teacher directory on a cron schedule.
type Runner struct {
	cron    *cron.Cron
	target  Reloader
	spec    string
	timeout time.Duration
	entry   cron.EntryID
}

// New parses spec (standard five-field cron or a descriptor such as
// "@every 15m") and registers the refresh job. The runner is not started.
func New(spec string, target Reloader) (*Runner, error) {
	logger := cronLogger{}
	r := &Runner{
		cron: cron.New(cron.WithLogger(logger), cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		target:  target,
		spec:    spec,
		timeout: DefaultTimeout,
	}
	id, err := r.cron.AddFunc(spec, r.run)
	if err != nil {
		return nil, fmt.Errorf("jobs: invalid refresh schedule %q: %w", spec, err)
	}
	r.entry = id
	return r, nil
}

func (r *Runner) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.Refresh(ctx); err != nil {
		appLog.Error("scheduled refresh failed", err, "schedule", r.spec)
	}
}

// Refresh reloads the target once.
func (r *Runner) Refresh(ctx context.Context) error {
	start := time.Now()
	err := r.target.Reload(ctx)
	appLog.Info("teacher refresh", "took", time.Since(start), "ok", err == nil)
	return err
}

// Start runs the scheduler in its own goroutine.
func (r *Runner) Start() {
	r.cron.Start()
	appLog.Info("refresh job scheduled", "schedule", r.spec, "next", r.Next())
}

// Stop stops scheduling; the returned context is done once a running
// refresh has finished.
func (r *Runner) Stop() context.Context {
	return r.cron.Stop()
}

// Next is the next planned run, zero before Start.
func (r *Runner) Next() time.Time {
	return r.cron.Entry(r.entry).Next
}

// cronLogger routes cron's own logging through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
