// Package scheduler drives the two recurring passes: nightly correction
// analysis and hourly accuracy monitoring. Schedules are standard 5-field
// cron expressions (minute hour day-of-month month day-of-week).
package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// AnalysisRunner runs one correction analysis pass.
type AnalysisRunner interface {
	Run(ctx context.Context) error
}

// AccuracyMonitor runs one accuracy monitoring pass.
type AccuracyMonitor interface {
	Monitor(ctx context.Context) error
}

type Config struct {
	AnalysisSchedule   string // e.g. "0 2 * * *"
	MonitoringSchedule string // e.g. "0 * * * *"
	RunBudget          time.Duration
	Location           *time.Location
}

func (c Config) withDefaults() Config {
	if c.RunBudget <= 0 {
		c.RunBudget = 10 * time.Minute
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

type job struct {
	name  string
	sched cron.Schedule
	run   func(ctx context.Context) error
}

// Scheduler owns the background loops. An empty schedule disables that
// cadence; an invalid one fails construction so a typo cannot silently
// disable monitoring.
type Scheduler struct {
	cfg  Config
	jobs []job

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func New(cfg Config, analysis AnalysisRunner, monitor AccuracyMonitor) (*Scheduler, error) {
	cfg = cfg.withDefaults()
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	s := &Scheduler{cfg: cfg}
	add := func(name, expr string, run func(ctx context.Context) error) error {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			log.Printf("%s disabled (no schedule)", name)
			return nil
		}
		sched, err := parser.Parse(expr)
		if err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", name, expr, err)
		}
		s.jobs = append(s.jobs, job{name: name, sched: sched, run: run})
		log.Printf("%s scheduled (cron: %s)", name, expr)
		return nil
	}

	if analysis != nil {
		if err := add("analysis", cfg.AnalysisSchedule, analysis.Run); err != nil {
			return nil, err
		}
	}
	if monitor != nil {
		if err := add("monitoring", cfg.MonitoringSchedule, monitor.Monitor); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start launches one loop per enabled job. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(j)
	}
	go func() {
		wg.Wait()
		close(s.done)
	}()
}

// Stop cancels the loops and any in-flight run, then waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	for {
		now := time.Now().In(s.cfg.Location)
		next := j.sched.Next(now)
		wait := next.Sub(now)
		log.Printf("next %s run at %s (in %s)", j.name, next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.runOnce(ctx, j)
	}
}

// runOnce executes one pass under the run budget. A run that overruns its
// budget is cancelled, not left to collide with the next tick.
func (s *Scheduler) runOnce(ctx context.Context, j job) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunBudget)
	defer cancel()

	start := time.Now()
	if err := j.run(runCtx); err != nil {
		log.Printf("%s run error after %s: %v", j.name, time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("%s run complete in %s", j.name, time.Since(start).Round(time.Millisecond))
}
