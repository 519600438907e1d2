package pdfrenderer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoaderConcurrentAcquireInitializesOnce(t *testing.T) {
	engine := newFakeEngine()
	release := make(chan struct{})
	var calls atomic.Int64
	loader := NewLoader(func(ctx context.Context) (Engine, error) {
		calls.Add(1)
		<-release
		return engine, nil
	})

	const callers = 32
	var wg sync.WaitGroup
	results := make([]Engine, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = loader.Acquire(context.Background())
		}(i)
	}

	// Let every caller pile up behind the pending load
	waitFor(t, func() bool { return loader.State() == StateLoading })
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("Expected factory to run once, ran %d times", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("Caller %d got error: %v", i, errs[i])
		}
		if results[i] != Engine(engine) {
			t.Fatalf("Caller %d got a different engine", i)
		}
	}
	if loader.State() != StateReady {
		t.Errorf("Expected state %q, got %q", StateReady, loader.State())
	}

	// Later callers get the cached engine without another load
	if _, err := loader.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire after ready failed: %v", err)
	}
	if loader.Attempts() != 1 {
		t.Errorf("Expected 1 attempt, got %d", loader.Attempts())
	}
}

func TestLoaderRetriesAfterFailure(t *testing.T) {
	engine := newFakeEngine()
	loadErr := errors.New("network unreachable")
	var calls atomic.Int64
	loader := NewLoader(func(ctx context.Context) (Engine, error) {
		if calls.Add(1) == 1 {
			return nil, loadErr
		}
		return engine, nil
	})

	_, err := loader.Acquire(context.Background())
	if !errors.Is(err, ErrEngineLoad) {
		t.Fatalf("Expected ErrEngineLoad, got %v", err)
	}
	if !errors.Is(err, loadErr) {
		t.Errorf("Expected the cause to be preserved, got %v", err)
	}
	if StageOf(err) != StageEngineLoad {
		t.Errorf("Expected stage %q, got %q", StageEngineLoad, StageOf(err))
	}
	if loader.State() != StateUninitialized {
		t.Errorf("Expected failed load to reset state, got %q", loader.State())
	}

	got, err := loader.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if got != Engine(engine) {
		t.Error("Retry returned the wrong engine")
	}
	if loader.Attempts() != 2 {
		t.Errorf("Expected 2 attempts, got %d", loader.Attempts())
	}
}

func TestLoaderSharesFailureWithConcurrentCallers(t *testing.T) {
	release := make(chan struct{})
	loader := NewLoader(func(ctx context.Context) (Engine, error) {
		<-release
		return nil, errors.New("wasm runtime missing")
	})

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = loader.Acquire(context.Background())
		}(i)
	}
	waitFor(t, func() bool { return loader.State() == StateLoading })
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrEngineLoad) {
			t.Errorf("Caller %d: expected ErrEngineLoad, got %v", i, err)
		}
		if err != errs[0] {
			t.Errorf("Caller %d: expected the shared failure, got a different error", i)
		}
	}
	if loader.Attempts() != 1 {
		t.Errorf("Expected 1 attempt, got %d", loader.Attempts())
	}
}

func TestLoaderRecoversFactoryPanic(t *testing.T) {
	engine := newFakeEngine()
	var calls atomic.Int64
	loader := NewLoader(func(ctx context.Context) (Engine, error) {
		if calls.Add(1) == 1 {
			panic("bad module")
		}
		return engine, nil
	})

	if _, err := loader.Acquire(context.Background()); !errors.Is(err, ErrEngineLoad) {
		t.Fatalf("Expected ErrEngineLoad from panicking factory, got %v", err)
	}
	if _, err := loader.Acquire(context.Background()); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
}

func TestLoaderNilEngineIsLoadFailure(t *testing.T) {
	loader := NewLoader(func(ctx context.Context) (Engine, error) {
		return nil, nil
	})
	if _, err := loader.Acquire(context.Background()); !errors.Is(err, ErrEngineLoad) {
		t.Fatalf("Expected ErrEngineLoad, got %v", err)
	}
}

func TestLoaderWaiterCancellationDoesNotAbortLoad(t *testing.T) {
	engine := newFakeEngine()
	release := make(chan struct{})
	var factoryCtxErr atomic.Value
	loader := NewLoader(func(ctx context.Context) (Engine, error) {
		<-release
		if ctx.Err() != nil {
			factoryCtxErr.Store(ctx.Err())
		}
		return engine, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := loader.Acquire(ctx)
		done <- err
	}()
	waitFor(t, func() bool { return loader.State() == StateLoading })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled for the waiter, got %v", err)
	}

	close(release)
	waitFor(t, func() bool { return loader.State() == StateReady })
	if v := factoryCtxErr.Load(); v != nil {
		t.Errorf("Factory context was cancelled: %v", v)
	}
	if _, err := loader.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire after load failed: %v", err)
	}
	if loader.Attempts() != 1 {
		t.Errorf("Expected 1 attempt, got %d", loader.Attempts())
	}
}

func TestNewEngineFactoryRejectsUnknownBackend(t *testing.T) {
	if _, err := NewEngineFactory(EngineOptions{Backend: "ghostscript"}); err == nil {
		t.Fatal("Expected error for unknown backend")
	}
	for _, backend := range []string{"", "pdfium", "PDFium", "fitz"} {
		if _, err := NewEngineFactory(EngineOptions{Backend: backend}); err != nil {
			t.Errorf("Backend %q: unexpected error %v", backend, err)
		}
	}
}

// waitFor polls cond for up to two seconds
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

// closingEngine counts Close calls
type closingEngine struct {
	*fakeEngine
	closes atomic.Int64
}

func (e *closingEngine) Close() error {
	e.closes.Add(1)
	return nil
}

func TestLoaderCloseReleasesEngine(t *testing.T) {
	engine := &closingEngine{fakeEngine: newFakeEngine()}
	loader := NewLoader(staticFactory(engine))

	// Nothing loaded yet: nothing to release
	if err := loader.Close(); err != nil {
		t.Fatalf("Close before load failed: %v", err)
	}
	if _, err := loader.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := loader.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := engine.closes.Load(); got != 1 {
		t.Errorf("Expected engine to be closed once, got %d", got)
	}

	// Engines without resources are left alone
	plain := NewLoader(staticFactory(newFakeEngine()))
	if _, err := plain.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := plain.Close(); err != nil {
		t.Errorf("Expected Close on a plain engine to succeed, got %v", err)
	}
}
