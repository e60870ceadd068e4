// Package worker runs background jobs on asynq: notification emails and
// the periodic request expiry sweep.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/handyhub/internal/alerts"
)

// Task type constants
const (
	TaskSweepRequests = "requests:sweep"
)

// Queue names
const (
	QueueMaintenance = "maintenance"
)

// Sweeper expires overdue requests.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// NewSweepTask builds the task that runs one expiry sweep.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSweepRequests, nil,
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(0),
		asynq.Timeout(time.Minute),
	)
}

// NewMux routes every task type the worker handles.
func NewMux(processor *alerts.Processor, sweeper Sweeper, logger zerolog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	if processor != nil {
		processor.Register(mux)
	}
	if sweeper != nil {
		mux.HandleFunc(TaskSweepRequests, sweepHandler(sweeper, logger))
	}
	return mux
}

func sweepHandler(s Sweeper, logger zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		n, err := s.Sweep(ctx)
		if err != nil {
			return fmt.Errorf("sweep requests: %w", err)
		}
		if n > 0 {
			logger.Info().Int("expired", n).Msg("sweep task")
		}
		return nil
	}
}

// CronSpec turns a sweep interval into a scheduler spec.
func CronSpec(interval time.Duration) string {
	if interval < time.Second {
		interval = time.Minute
	}
	return "@every " + interval.String()
}

type Config struct {
	RedisAddr     string
	Concurrency   int
	SweepInterval time.Duration
}

// Worker owns the asynq server and, when a sweep interval is set, the
// scheduler that enqueues sweeps.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	interval  time.Duration
	log       zerolog.Logger
}

func New(cfg Config, mux *asynq.ServeMux, logger zerolog.Logger) *Worker {
	logger = logger.With().Str("component", "worker").Logger()
	opts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	w := &Worker{
		server: asynq.NewServer(opts, asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				alerts.QueueEmails: 10,
				QueueMaintenance:   5,
			},
			Logger: asynqLogger{logger},
		}),
		mux:      mux,
		interval: cfg.SweepInterval,
		log:      logger,
	}
	if cfg.SweepInterval > 0 {
		w.scheduler = asynq.NewScheduler(opts, &asynq.SchedulerOpts{Logger: asynqLogger{logger}})
	}
	return w
}

// Start runs the server and scheduler in the background.
func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	if w.scheduler != nil {
		spec := CronSpec(w.interval)
		if _, err := w.scheduler.Register(spec, NewSweepTask()); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("schedule sweep: %w", err)
		}
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("start scheduler: %w", err)
		}
		w.log.Info().Str("spec", spec).Msg("sweep scheduled")
	}
	return nil
}

func (w *Worker) Shutdown() {
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
