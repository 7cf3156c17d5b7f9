package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lucasaxm/RegataSimulator/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu      sync.Mutex
	actions []workflow.Action
	sources []string
}

func (f *fakeRunner) Run(_ context.Context, initial workflow.Action, wc *workflow.Context) []workflow.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, initial)
	f.sources = append(f.sources, wc.Trigger.Source)
	return []workflow.Action{initial}
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.actions)
}

func TestNextRun(t *testing.T) {
	sp, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	tests := []struct {
		name  string
		spec  string
		after time.Time
		want  time.Time
	}{
		{
			name:  "meme on the hour",
			spec:  "0 0,30 * * * *",
			after: time.Date(2024, 10, 25, 12, 10, 0, 0, sp),
			want:  time.Date(2024, 10, 25, 12, 30, 0, 0, sp),
		},
		{
			name:  "meme on the half hour",
			spec:  "0 0,30 * * * *",
			after: time.Date(2024, 10, 25, 12, 30, 0, 0, sp),
			want:  time.Date(2024, 10, 25, 13, 0, 0, 0, sp),
		},
		{
			name:  "backup on sunday",
			spec:  "0 15 12 * * SUN",
			after: time.Date(2024, 10, 25, 9, 0, 0, 0, sp),
			want:  time.Date(2024, 10, 27, 12, 15, 0, 0, sp),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRun(tt.spec, tt.after)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err = NextRun("0 0 * *", time.Now())
	assert.Error(t, err)
}

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(&fakeRunner{}, time.UTC)
	err := s.Add(context.Background(), Job{Name: "broken", Spec: "every day", Action: workflow.GetRandomTemplate})
	assert.ErrorContains(t, err, "broken")
}

func TestFireSeedsAction(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, time.UTC)

	trail := s.Fire(context.Background(), Job{Name: "backup", Action: workflow.BackupDatabase})

	assert.Equal(t, []workflow.Action{workflow.BackupDatabase}, trail)
	assert.Equal(t, []string{TriggerSource}, runner.sources)
}

func TestRunFiresJobs(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Add(ctx, Job{Name: "meme", Spec: "* * * * * *", Action: workflow.GetRandomTemplate}))

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return runner.count() > 0 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, workflow.GetRandomTemplate, runner.actions[0])
}
