package ble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeRadio models an adapter whose StopScan fails until Scan is running.
type fakeRadio struct {
	mu       sync.Mutex
	scanning bool
	stops    int
	stopped  chan struct{}
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{stopped: make(chan struct{})}
}

func (r *fakeRadio) stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	if !r.scanning {
		return errors.New("no scan in progress")
	}
	r.scanning = false
	close(r.stopped)
	return nil
}

func (r *fakeRadio) scan(startDelay time.Duration) func() error {
	return func() error {
		time.Sleep(startDelay)
		r.mu.Lock()
		r.scanning = true
		r.mu.Unlock()
		<-r.stopped
		return nil
	}
}

func TestRunScanStopsAfterLateStart(t *testing.T) {
	radio := newFakeRadio()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- runScan(ctx, radio.stop, radio.scan(3*scanStopRetry)) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("runScan() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runScan() did not return after a cancel that raced the scan start")
	}

	radio.mu.Lock()
	defer radio.mu.Unlock()
	if radio.stops < 2 {
		t.Errorf("stop calls = %d, want retries until the scan started", radio.stops)
	}
}

func TestRunScanReturnsWithoutCancel(t *testing.T) {
	stopCalled := false
	err := runScan(context.Background(), func() error {
		stopCalled = true
		return nil
	}, func() error { return nil })
	if err != nil {
		t.Errorf("runScan() error = %v", err)
	}
	if stopCalled {
		t.Error("stop called although ctx was never cancelled")
	}
}

func TestTinyGoScanCancelledContext(t *testing.T) {
	a := &TinyGoAdapter{connections: make(map[string]*tinyGoConnection)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The nil bluetooth adapter is never touched when ctx is already done.
	found, err := a.Scan(ctx)
	if err != nil || len(found) != 0 {
		t.Errorf("Scan(cancelled) = %v, %v; want no peripherals, nil", found, err)
	}
}
