package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sjsage522/hotpostcollector/logger"
	"sjsage522/hotpostcollector/services/worker"
)

// Runner performs one crawl cycle
type Runner interface {
	RunOnce(ctx context.Context) (worker.Result, error)
}

// Scheduler runs a crawl cycle at startup and then on a fixed interval.
// Cycles never overlap and a failing or panicking cycle does not stop later ones.
type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	interval time.Duration
	logger   *logger.Logger
	wg       sync.WaitGroup
}

// New creates a scheduler for runner
func New(runner Runner, interval time.Duration) *Scheduler {
	log := logger.ForScheduler()
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:   runner,
		interval: interval,
		logger:   log,
	}
}

// Start runs the first cycle immediately and schedules the following ones.
// ctx is handed to every cycle.
func (s *Scheduler) Start(ctx context.Context) {
	job := cron.FuncJob(func() { s.runCycle(ctx) })

	// The immediate run goes through the same wrappers as scheduled runs,
	// so a slow first cycle also makes the next tick skip.
	s.cron.Schedule(cron.Every(s.interval), job)
	wrapped := s.cron.Entries()[0].WrappedJob

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		wrapped.Run()
	}()

	s.cron.Start()
	s.logger.Info().Dur("interval", s.interval).Msg("Scheduler started")
}

// Stop stops scheduling and waits for a running cycle to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.runner.RunOnce(ctx)
	switch {
	case errors.Is(err, worker.ErrCycleInProgress):
		s.logger.Info().Msg("Cycle already running, tick skipped")
	case err != nil:
		s.logger.Warn().Err(err).Msg("Cycle failed, waiting for next tick")
	default:
		s.logger.Debug().
			Int("fetched", res.Fetched).
			Int("saved", res.Saved).
			Msg("Cycle completed")
	}
}

// cronLogger adapts the zerolog logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
