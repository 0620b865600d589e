package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingService struct {
	calls atomic.Int32
	err   error
}

func (s *countingService) Reconcile(ctx context.Context) error {
	s.calls.Add(1)
	return s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconciler_RunsImmediatelyAndOnTick(t *testing.T) {
	service := &countingService{}
	reconciler := NewReconciler(service, testLogger(), 20*time.Millisecond)

	done := make(chan struct{})
	go func() {
		reconciler.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return service.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond, "sweep should run at startup and again on the first tick")

	reconciler.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}

func TestReconciler_StopsOnContextCancel(t *testing.T) {
	service := &countingService{}
	reconciler := NewReconciler(service, testLogger(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reconciler.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return service.calls.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not honor context cancellation")
	}
}

func TestReconciler_KeepsRunningAfterSweepError(t *testing.T) {
	service := &countingService{err: errors.New("db down")}
	reconciler := NewReconciler(service, testLogger(), 20*time.Millisecond)

	go reconciler.Start(context.Background())
	defer reconciler.Stop()

	assert.Eventually(t, func() bool {
		return service.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond, "a failing sweep must not stop the loop")
}
