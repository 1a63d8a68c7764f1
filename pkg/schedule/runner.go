package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/usageledger/pkg/logger"
)

// JobFunc is one run of a periodic job.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	schedule Schedule
	fn       JobFunc
}

// Runner runs registered jobs in-process, each on its own schedule. A run
// that is still going when the next one is due delays it; runs of one job
// never overlap.
type Runner struct {
	mu         sync.Mutex
	jobs       []*job
	logger     *slog.Logger
	now        func() time.Time
	runOnStart bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger for the runner.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRunOnStart runs every job once as soon as Run starts.
func WithRunOnStart() Option {
	return func(r *Runner) {
		r.runOnStart = true
	}
}

// NewRunner creates an empty runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a job. Names must be unique.
func (r *Runner) Add(name string, s Schedule, fn JobFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, j := range r.jobs {
		if j.name == name {
			return fmt.Errorf("%w: %s", ErrJobAlreadyRegistered, name)
		}
	}
	r.jobs = append(r.jobs, &job{name: name, schedule: s, fn: fn})
	r.logger.Info("registered periodic job",
		logger.Component("scheduler"),
		slog.String("job", name),
		slog.String("schedule", s.String()),
	)
	return nil
}

// Run blocks until ctx is done and returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	jobs := append([]*job(nil), r.jobs...)
	r.mu.Unlock()

	if len(jobs) == 0 {
		return ErrNoJobs
	}

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx, j)
		}()
	}
	wg.Wait()

	r.logger.Info("scheduler stopped", logger.Component("scheduler"))
	return ctx.Err()
}

func (r *Runner) loop(ctx context.Context, j *job) {
	if r.runOnStart {
		r.runOnce(ctx, j)
	}

	next := j.schedule.Next(r.now())
	for {
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		r.runOnce(ctx, j)
		next = j.schedule.Next(next)
		if now := r.now(); next.Before(now) {
			// Missed slots are skipped, not replayed
			next = j.schedule.Next(now)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, j *job) {
	started := r.now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "periodic job panicked",
				slog.String("job", j.name),
				slog.Any("panic", p),
			)
		}
	}()

	if err := j.fn(ctx); err != nil {
		r.logger.ErrorContext(ctx, "periodic job failed",
			slog.String("job", j.name),
			logger.Duration(time.Since(started)),
			logger.Error(err),
		)
		return
	}
	r.logger.DebugContext(ctx, "periodic job finished",
		slog.String("job", j.name),
		logger.Duration(time.Since(started)),
	)
}
