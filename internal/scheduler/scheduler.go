// Package scheduler seeds workflow runs from cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/routes"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
	"github.com/robfig/cron/v3"
)

// TriggerSource tags runs started by a timer
const TriggerSource = "schedule"

// Job starts Action every time Spec fires. Specs have a leading seconds field.
type Job struct {
	Name   string
	Spec   string
	Action workflow.Action
}

type Scheduler struct {
	cron   *cron.Cron
	runner routes.Runner
	loc    *time.Location
}

func New(runner routes.Runner, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{}),
		// a slow meme run must not overlap the next one
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)
	return &Scheduler{cron: c, runner: runner, loc: loc}
}

// Add registers jobs; ctx is handed to every run they start
func (s *Scheduler) Add(ctx context.Context, jobs ...Job) error {
	for _, job := range jobs {
		_, err := s.cron.AddFunc(job.Spec, func() {
			s.Fire(ctx, job)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s %q: %w", job.Name, job.Spec, err)
		}
		next, _ := NextRun(job.Spec, time.Now().In(s.loc))
		slog.Info("Scheduled job", "job", job.Name, "spec", job.Spec, "action", job.Action, "next", next)
	}
	return nil
}

// Fire runs job once, right now
func (s *Scheduler) Fire(ctx context.Context, job Job) []workflow.Action {
	wc := workflow.NewContext(&chat.Trigger{Source: TriggerSource})
	wc.Log = wc.Log.With("job", job.Name)
	return s.runner.Run(ctx, job.Action, wc)
}

// Run starts the timers and blocks until ctx is done, then waits for
// running jobs to finish
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	slog.Info("Scheduler stopped")
}

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextRun is the first time spec fires after the given instant, in its location
func NextRun(spec string, after time.Time) (time.Time, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return schedule.Next(after), nil
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
