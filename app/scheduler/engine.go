// Package scheduler runs the poll-driven delivery engine: four pollers over
// durable rows, a shared concurrency limiter, and a reclaim sweep.
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	businessflow "github.com/sepehrad/broadcastd/business_flow"
	"github.com/sepehrad/broadcastd/config"
	"github.com/sepehrad/broadcastd/repository"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Engine owns the four poller loops. Each loop ticks on the shared interval,
// claims a cursor batch of rows, marks them processing, and hands each row to
// the limiter; the flows do the rest.
type Engine struct {
	controlRepo repository.ControlRequestRepository
	sourceRepo  repository.EnrollmentSourceRepository
	queueRepo   repository.QueueEntryRepository
	forwardRepo repository.ForwardQueueRepository

	controlFlow  businessflow.ControlFlow
	entryFlow    businessflow.ContactEntryFlow
	dispatchFlow businessflow.DispatchFlow
	scheduler    businessflow.SchedulerFlow

	limiter *Limiter
	logger  *log.Logger
	cfg     config.SchedulerConfig
}

// NewEngine creates the engine with its shared limiter and logger
func NewEngine(
	controlRepo repository.ControlRequestRepository,
	sourceRepo repository.EnrollmentSourceRepository,
	queueRepo repository.QueueEntryRepository,
	forwardRepo repository.ForwardQueueRepository,
	controlFlow businessflow.ControlFlow,
	entryFlow businessflow.ContactEntryFlow,
	dispatchFlow businessflow.DispatchFlow,
	schedulerFlow businessflow.SchedulerFlow,
	cfg config.SchedulerConfig,
	logCfg config.LoggingConfig,
) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &Engine{
		controlRepo:  controlRepo,
		sourceRepo:   sourceRepo,
		queueRepo:    queueRepo,
		forwardRepo:  forwardRepo,
		controlFlow:  controlFlow,
		entryFlow:    entryFlow,
		dispatchFlow: dispatchFlow,
		scheduler:    schedulerFlow,
		limiter:      NewLimiter(cfg.ConcurrencyLimit),
		logger:       newEngineLogger(logCfg),
		cfg:          cfg,
	}
}

// newEngineLogger builds the engine logger per the logging config: stdout,
// a rotating file, or both
func newEngineLogger(cfg config.LoggingConfig) *log.Logger {
	flags := log.LstdFlags | log.Lmicroseconds | log.LUTC

	var w io.Writer
	switch cfg.Output {
	case "stdout":
		w = os.Stdout
	case "file":
		w = rotatingFile(cfg)
	default:
		w = io.MultiWriter(os.Stdout, rotatingFile(cfg))
	}
	return log.New(w, "scheduler ", flags)
}

func rotatingFile(cfg config.LoggingConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
}

// Start launches the poller loops in background goroutines and returns a stop
// function. Each loop runs once immediately, then on every tick.
func (e *Engine) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	loops := []struct {
		name string
		run  func(context.Context)
	}{
		{"control", e.runControlOnce},
		{"entry", e.runEntryOnce},
		{"forward", e.runForwardOnce},
		{"dispatch", e.runDispatchOnce},
	}

	for _, loop := range loops {
		run := loop.run
		go func() {
			ticker := time.NewTicker(e.cfg.PollInterval)
			defer ticker.Stop()

			run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					run(ctx)
				}
			}
		}()
	}

	e.logger.Printf("scheduler: engine started, interval=%s batch=%d limit=%d",
		e.cfg.PollInterval, e.cfg.BatchSize, e.cfg.ConcurrencyLimit)

	return cancel
}
