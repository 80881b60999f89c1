package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskEscrowSweep is the periodic task that drives escrow auto-release.
const TaskEscrowSweep = "escrow:sweep"

const sweepQueue = "escrow"

// Releaser is the slice of the escrow engine the sweep needs.
type Releaser interface {
	AutoReleaseExpired(ctx context.Context) (int, error)
}

// Runner schedules and executes the auto-release sweep on a fixed interval,
// backed by the shared Redis instance. The escrow engine stays oblivious to
// scheduling; it only exposes the idempotent sweep entry point.
type Runner struct {
	svc       Releaser
	logger    *slog.Logger
	scheduler *asynq.Scheduler
	server    *asynq.Server
}

// New builds the sweep runner from the Redis URL used by the rest of the
// application.
func New(redisURL string, interval time.Duration, svc Releaser, logger *slog.Logger) (*Runner, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}

	r := &Runner{svc: svc, logger: logger}
	r.scheduler = asynq.NewScheduler(opt, &asynq.SchedulerOpts{LogLevel: asynq.ErrorLevel})
	if _, err := r.scheduler.Register(
		fmt.Sprintf("@every %s", interval),
		asynq.NewTask(TaskEscrowSweep, nil),
		asynq.Queue(sweepQueue),
	); err != nil {
		return nil, fmt.Errorf("register sweep task: %w", err)
	}

	r.server = asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{sweepQueue: 1},
		LogLevel:    asynq.ErrorLevel,
	})
	return r, nil
}

// Start launches the scheduler and the task worker.
func (r *Runner) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskEscrowSweep, r.handleSweep)

	if err := r.server.Start(mux); err != nil {
		return fmt.Errorf("start sweep worker: %w", err)
	}
	if err := r.scheduler.Start(); err != nil {
		r.server.Shutdown()
		return fmt.Errorf("start sweep scheduler: %w", err)
	}
	r.logger.Info("escrow sweep scheduled")
	return nil
}

// Shutdown stops the scheduler and waits for in-flight sweeps.
func (r *Runner) Shutdown() {
	r.scheduler.Shutdown()
	r.server.Shutdown()
}

func (r *Runner) handleSweep(ctx context.Context, _ *asynq.Task) error {
	released, err := r.svc.AutoReleaseExpired(ctx)
	if err != nil {
		r.logger.Error("escrow sweep failed", "error", err)
		return err
	}
	if released > 0 {
		r.logger.Info("escrow sweep completed", "released", released)
	}
	return nil
}
