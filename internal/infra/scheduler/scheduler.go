package scheduler

import (
	"context"
	"sync"
	"time"

	"appointment_reminder/internal/app" // For ReminderProcessor interface

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ReminderScheduler runs the scan cycle on a fixed cadence.
// Cycles never overlap; a tick that fires while one is running is skipped.
type ReminderScheduler struct {
	processor    app.ReminderProcessor
	logger       *logrus.Entry
	interval     time.Duration
	cycleTimeout time.Duration

	mu         sync.Mutex
	running    bool
	cronEngine *cron.Cron
	cancel     context.CancelFunc
	wg         sync.WaitGroup // tracks the startup cycle, which runs outside the cron engine
}

func NewReminderScheduler(
	processor app.ReminderProcessor,
	logger *logrus.Entry,
	interval time.Duration, // e.g. 15s; cron.Every rounds below one second up
	cycleTimeout time.Duration,
) *ReminderScheduler {
	return &ReminderScheduler{
		processor:    processor,
		logger:       logger,
		interval:     interval,
		cycleTimeout: cycleTimeout,
	}
}

// Start begins polling and immediately runs one cycle, so reminders that became
// due while the process was down go out at once. Calling Start on a running
// scheduler does nothing.
func (s *ReminderScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Debug("Scheduler already running, ignoring Start")
		return
	}
	s.logger.WithField("interval", s.interval.String()).Info("Starting reminder scheduler...")

	baseCtx, cancel := context.WithCancel(context.Background())
	cronLogger := cron.PrintfLogger(s.logger)
	job := cron.NewChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	).Then(cron.FuncJob(func() { s.runCycle(baseCtx) }))

	s.cronEngine = cron.New(cron.WithLocation(time.Local))
	s.cronEngine.Schedule(cron.Every(s.interval), job)
	s.cronEngine.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		job.Run()
	}()

	s.cancel = cancel
	s.running = true
	s.logger.Info("Reminder scheduler started.")
}

// Stop halts future cycles and waits for the in-flight one to return.
// The in-flight cycle sees a cancelled context and leaves unprocessed reminders scheduled.
func (s *ReminderScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.logger.Info("Stopping reminder scheduler...")

	s.cancel()
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.wg.Wait()

	s.running = false
	s.logger.Info("Reminder scheduler gracefully stopped.")
}

func (s *ReminderScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *ReminderScheduler) runCycle(baseCtx context.Context) {
	if baseCtx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(baseCtx, s.cycleTimeout)
	defer cancel()

	report, err := s.processor.ProcessDueReminders(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("sent", report.Sent).Error("Scan cycle ended with error")
		return
	}
	if report.Due > 0 {
		s.logger.WithFields(logrus.Fields{
			"due":     report.Due,
			"sent":    report.Sent,
			"failed":  report.Failed,
			"skipped": report.Skipped,
		}).Debug("Scan cycle completed")
	}
}
