package routes

import (
	"context"

	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
)

// Runner executes one workflow run
type Runner interface {
	Run(ctx context.Context, initial workflow.Action, wc *workflow.Context) []workflow.Action
}

// Router evaluates every route against a trigger and starts one run per match
type Router struct {
	routes []Route
	runner Runner
}

func NewRouter(runner Runner, routes ...Route) *Router {
	return &Router{routes: routes, runner: runner}
}

// Actions returns the initial actions produced by the matching routes
func (r *Router) Actions(t *chat.Trigger) []workflow.Action {
	var actions []workflow.Action
	for _, route := range r.routes {
		if action, ok := route.Match(t); ok {
			actions = append(actions, action)
		}
	}
	return actions
}

// Dispatch runs the workflow for every matched action, each in a fresh
// context, and returns how many runs were started.
func (r *Router) Dispatch(ctx context.Context, t *chat.Trigger) int {
	actions := r.Actions(t)
	for _, action := range actions {
		r.runner.Run(ctx, action, workflow.NewContext(t))
	}
	return len(actions)
}
