package runner

import (
	"context"
	"sync"
	"testing"
	"time"
)

type stubDrainer struct {
	mu      sync.Mutex
	drained bool
	block   chan struct{}
}

func (d *stubDrainer) Drain() error {
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	d.drained = true
	d.mu.Unlock()
	return nil
}

func (d *stubDrainer) wasDrained() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drained
}

func TestRunStopsOnContextCancel(t *testing.T) {
	drainer := &stubDrainer{}
	started := make(chan struct{})
	r := NewLifecycleRunner(drainer, Hooks{OnStart: func() { close(started) }}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("OnStart hook never ran")
	}
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run never returned")
	}
	if !drainer.wasDrained() {
		t.Fatalf("drainer not invoked on stop")
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped state, got %d", r.State())
	}
}

func TestStopDrainTimeout(t *testing.T) {
	drainer := &stubDrainer{block: make(chan struct{})}
	r := NewLifecycleRunner(drainer, Hooks{}, 50*time.Millisecond)

	err := r.Stop()
	if err == nil || err.Error() != "drain timeout" {
		t.Fatalf("expected drain timeout, got %v", err)
	}
	close(drainer.block)
}

func TestRunTwiceRejected(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected second Run to be rejected")
	}
}
