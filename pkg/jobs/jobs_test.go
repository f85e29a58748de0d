package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sheetsmith/sheetsmith-engine/pkg/services"
)

type stubScoper struct {
	err     error
	cleaned bool
}

type scopeKey struct{}

func (s *stubScoper) WithoutTenant(ctx context.Context) (context.Context, func(), error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return context.WithValue(ctx, scopeKey{}, true), func() { s.cleaned = true }, nil
}

type stubReconciler struct {
	report *services.ReconcileReport
	err    error
	scoped bool
	calls  int
}

func (r *stubReconciler) Reconcile(ctx context.Context) (*services.ReconcileReport, error) {
	r.calls++
	r.scoped, _ = ctx.Value(scopeKey{}).(bool)
	return r.report, r.err
}

type stubSweeper struct {
	ttl     time.Duration
	removed int
}

func (s *stubSweeper) Sweep(ttl time.Duration) int {
	s.ttl = ttl
	return s.removed
}

func TestReconcileJob_RunsInScope(t *testing.T) {
	scope := &stubScoper{}
	catalog := &stubReconciler{report: &services.ReconcileReport{Stale: []string{"gone"}, Untracked: []string{"manual"}}}

	NewReconcileJob(scope, catalog, zap.NewNop()).Run(context.Background())

	assert.Equal(t, 1, catalog.calls)
	assert.True(t, catalog.scoped)
	assert.True(t, scope.cleaned)
}

func TestReconcileJob_ScopeFailureSkipsPass(t *testing.T) {
	catalog := &stubReconciler{}
	NewReconcileJob(&stubScoper{err: errors.New("pool closed")}, catalog, zap.NewNop()).Run(context.Background())
	assert.Zero(t, catalog.calls)
}

func TestReconcileJob_ReconcileErrorIsLogged(t *testing.T) {
	scope := &stubScoper{}
	catalog := &stubReconciler{err: errors.New("warehouse down")}

	assert.NotPanics(t, func() {
		NewReconcileJob(scope, catalog, zap.NewNop()).Run(context.Background())
	})
	assert.True(t, scope.cleaned)
}

func TestSessionSweepJob(t *testing.T) {
	sweeper := &stubSweeper{removed: 2}
	NewSessionSweepJob(sweeper, 30*time.Minute).Run(context.Background())
	assert.Equal(t, 30*time.Minute, sweeper.ttl)
}

func TestScheduler_RunsJobImmediately(t *testing.T) {
	s, err := NewScheduler(zap.NewNop())
	require.NoError(t, err)

	ran := make(chan context.Context, 1)
	require.NoError(t, s.Every("tick", time.Hour, func(ctx context.Context) {
		select {
		case ran <- ctx:
		default:
		}
	}))
	s.Start()

	var jobCtx context.Context
	select {
	case jobCtx = <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}

	require.NoError(t, s.Shutdown())
	assert.ErrorIs(t, jobCtx.Err(), context.Canceled)
}

func TestScheduler_RejectsBadJobs(t *testing.T) {
	s, err := NewScheduler(zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = s.Shutdown() }()

	noop := func(context.Context) {}
	assert.Error(t, s.Every("", time.Minute, noop))
	assert.Error(t, s.Every("zero", 0, noop))
	assert.Error(t, s.Every("nil", time.Minute, nil))
}
