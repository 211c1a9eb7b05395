package device

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bornholm/uitester/internal/slogx"
	"github.com/pkg/errors"
	"github.com/rs/xid"
)

type fakeBuilder struct {
	builds atomic.Int32
	delay  time.Duration
	fail   atomic.Bool
}

func (b *fakeBuilder) Build(ctx context.Context, deviceID string) (*Handle, error) {
	b.builds.Add(1)

	select {
	case <-time.After(b.delay):
	case <-ctx.Done():
		return nil, errors.WithStack(ctx.Err())
	}

	if b.fail.Load() {
		return nil, &InitError{DeviceID: deviceID, Step: StepAgentStart, Attempts: 3, Cause: errors.New("agent did not start")}
	}

	handle := &Handle{
		DeviceID:      deviceID,
		SessionID:     xid.New().String(),
		InitializedAt: time.Now(),
		bridge:        newFakeBridge(deviceID),
	}
	handle.initialized.Store(true)

	return handle, nil
}

func TestCacheConcurrentAcquire(t *testing.T) {
	builder := &fakeBuilder{delay: 50 * time.Millisecond}
	cache := NewCache(builder, slogx.NewTestLogger(t))

	const acquirers = 10

	var (
		wg     sync.WaitGroup
		leases = make([]*Lease, acquirers)
		errs   = make([]error, acquirers)
	)

	for i := 0; i < acquirers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			leases[i], errs[i] = cache.Acquire(context.Background(), "emulator-5554")
		}(i)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("acquire #%d: %+v", i, errors.WithStack(err))
		}
	}

	if got := builder.builds.Load(); got != 1 {
		t.Errorf("builds: expected 1, got %d", got)
	}

	first := leases[0].Handle()
	for i, lease := range leases {
		if lease.Handle() != first {
			t.Errorf("lease #%d: expected the shared handle", i)
		}
	}

	handle, holders, exists := cache.Lookup("emulator-5554")
	if !exists || handle != first {
		t.Fatalf("the shared handle should be cached")
	}

	if holders != acquirers {
		t.Errorf("holders: expected %d, got %d", acquirers, holders)
	}

	for _, lease := range leases {
		lease.Release()
		lease.Release()
	}

	if _, _, exists := cache.Lookup("emulator-5554"); exists {
		t.Errorf("the entry should be discarded once every lease is released")
	}

	if first.Initialized() {
		t.Errorf("a discarded handle should not be usable anymore")
	}
}

func TestCacheFailedBuildLeavesNoEntry(t *testing.T) {
	builder := &fakeBuilder{}
	builder.fail.Store(true)

	cache := NewCache(builder, slogx.NewTestLogger(t))

	_, err := cache.Acquire(context.Background(), "emulator-5554")

	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected an *InitError, got %+v", err)
	}

	if _, _, exists := cache.Lookup("emulator-5554"); exists {
		t.Fatalf("a failed bring-up should not leave a cache entry")
	}

	builder.fail.Store(false)

	lease, err := cache.Acquire(context.Background(), "emulator-5554")
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	defer lease.Release()

	if !lease.Handle().Initialized() {
		t.Errorf("handle should be initialized")
	}
}

func TestCacheRelease(t *testing.T) {
	builder := &fakeBuilder{}
	cache := NewCache(builder, slogx.NewTestLogger(t))

	// Unknown ids are no-ops
	cache.Release("unknown")
	cache.Release("unknown")

	first, err := cache.Acquire(context.Background(), "emulator-5554")
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	cache.Release("emulator-5554")
	cache.Release("emulator-5554")

	if _, _, exists := cache.Lookup("emulator-5554"); exists {
		t.Fatalf("entry should be removed by Release")
	}

	second, err := cache.Acquire(context.Background(), "emulator-5554")
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if second.Handle() == first.Handle() {
		t.Fatalf("a released handle should not be reused")
	}

	// The stale lease must not affect the new entry
	first.Release()

	handle, holders, exists := cache.Lookup("emulator-5554")
	if !exists || handle != second.Handle() || holders != 1 {
		t.Fatalf("stale lease release altered the new entry (exists=%v, holders=%d)", exists, holders)
	}

	second.Release()

	if builder.builds.Load() != 2 {
		t.Errorf("builds: expected 2, got %d", builder.builds.Load())
	}
}

func TestCacheAcquireCanceledWhileWaiting(t *testing.T) {
	builder := &fakeBuilder{delay: 500 * time.Millisecond}
	cache := NewCache(builder, slogx.NewTestLogger(t))

	done := make(chan error, 1)

	go func() {
		lease, err := cache.Acquire(context.Background(), "emulator-5554")
		if err == nil {
			lease.Release()
		}
		done <- err
	}()

	// Let the first acquirer take the construction lock
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := cache.Acquire(ctx, "emulator-5554"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %+v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
}

func TestCacheEmptyDeviceID(t *testing.T) {
	cache := NewCache(&fakeBuilder{}, slogx.NewTestLogger(t))

	if _, err := cache.Acquire(context.Background(), ""); !errors.Is(err, ErrEmptyDeviceID) {
		t.Fatalf("expected ErrEmptyDeviceID, got %+v", err)
	}
}

func TestKeyedMutex(t *testing.T) {
	locks := NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		running atomic.Int32
		maxSeen atomic.Int32
	)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock, err := locks.Lock(context.Background(), "emulator-5554")
			if err != nil {
				t.Errorf("%+v", errors.WithStack(err))
				return
			}
			defer unlock()

			current := running.Add(1)
			if current > maxSeen.Load() {
				maxSeen.Store(current)
			}

			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
		}()
	}

	// Other keys are not blocked
	unlock, err := locks.Lock(context.Background(), "emulator-5556")
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}
	unlock()
	unlock()

	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Errorf("expected at most one holder at a time, saw %d", maxSeen.Load())
	}

	locks.mutex.Lock()
	remaining := len(locks.locks)
	locks.mutex.Unlock()

	if remaining != 0 {
		t.Errorf("expected every lock to be collected, %d remaining", remaining)
	}
}
