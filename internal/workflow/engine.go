// Package workflow runs chains of steps keyed by Action until a step hands
// back an action nothing is registered for.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultMaxSteps bounds a single run
const DefaultMaxSteps = 64

// Step performs one unit of work and names the next action. Steps never
// return errors: they log and return None instead.
type Step interface {
	Run(ctx context.Context, wc *Context) Action
}

// StepFunc adapts a function to Step
type StepFunc func(ctx context.Context, wc *Context) Action

func (f StepFunc) Run(ctx context.Context, wc *Context) Action { return f(ctx, wc) }

// Registry maps each action to the step that handles it
type Registry map[Action]Step

// Engine executes workflow runs. It is safe for concurrent use as long as
// every run has its own Context.
type Engine struct {
	steps    Registry
	maxSteps int
}

func NewEngine(steps Registry, maxSteps int) *Engine {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Engine{steps: steps, maxSteps: maxSteps}
}

// Run executes steps starting at initial and returns the actions that ran.
// It never panics and never fails; problems are logged on the run logger.
func (e *Engine) Run(ctx context.Context, initial Action, wc *Context) []Action {
	if wc == nil {
		wc = NewContext(nil)
	}
	if wc.Log == nil {
		wc.Log = slog.Default()
	}
	log := wc.Log
	log.Info("Workflow started", "action", initial)

	var trail []Action
	action := initial
	for {
		step, ok := e.steps[action]
		if !ok || action == None {
			log.Info("Workflow finished", "last_action", action, "steps", len(trail))
			return trail
		}
		if len(trail) >= e.maxSteps {
			log.Error("Workflow aborted after too many steps", "action", action, "max_steps", e.maxSteps)
			return trail
		}

		trail = append(trail, action)
		log.Debug("Running step", "action", action)

		next, err := runStep(ctx, step, wc)
		if err != nil {
			log.Error("Step panicked", "action", action, "error", err)
			wc.Failed(fmt.Errorf("%s: %w", action, err))
			return trail
		}
		action = next
	}
}

func runStep(ctx context.Context, step Step, wc *Context) (next Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = None
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.Run(ctx, wc), nil
}
