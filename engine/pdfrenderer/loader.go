package pdfrenderer

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// LoaderState is the lifecycle position of the engine cell
type LoaderState string

const (
	StateUninitialized LoaderState = "uninitialized"
	StateLoading       LoaderState = "loading"
	StateReady         LoaderState = "ready"
)

const loadKey = "engine"

// Loader lazily builds the shared Engine. The cell goes uninitialized ->
// loading -> ready; a failed load drops back to uninitialized so the next
// Acquire retries. Once ready it never changes.
type Loader struct {
	factory  EngineFactory
	group    singleflight.Group
	ready    atomic.Pointer[readyEngine]
	loading  atomic.Bool
	attempts atomic.Int64
}

type readyEngine struct {
	engine Engine
}

// NewLoader creates a loader around the given factory
func NewLoader(factory EngineFactory) *Loader {
	return &Loader{factory: factory}
}

// Acquire returns the engine, starting its initialization on first use.
// Callers that arrive while a load is in flight share that load and its outcome.
// ctx only bounds how long this caller waits.
func (l *Loader) Acquire(ctx context.Context) (Engine, error) {
	if r := l.ready.Load(); r != nil {
		return r.engine, nil
	}

	ch := l.group.DoChan(loadKey, func() (interface{}, error) {
		// A load may have completed between the check above and joining here
		if r := l.ready.Load(); r != nil {
			return r.engine, nil
		}
		return l.load(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Engine), nil
	}
}

func (l *Loader) load(ctx context.Context) (engine Engine, err error) {
	attempt := l.attempts.Add(1)
	l.loading.Store(true)
	defer l.loading.Store(false)

	// singleflight re-panics on a fresh goroutine for DoChan, so nothing may escape
	defer func() {
		if r := recover(); r != nil {
			engine = nil
			err = stageError(StageEngineLoad, ErrEngineLoad, fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			Logger.Error("Render engine load failed", "stage", StageEngineLoad, "attempt", attempt, "error", err)
		}
	}()

	Logger.Info("Loading render engine", "attempt", attempt)
	engine, err = l.factory(ctx)
	if err != nil {
		return nil, stageError(StageEngineLoad, ErrEngineLoad, err)
	}
	if engine == nil {
		return nil, stageError(StageEngineLoad, ErrEngineLoad, fmt.Errorf("factory returned no engine"))
	}

	l.ready.Store(&readyEngine{engine: engine})
	Logger.Info("Render engine ready", "backend", engine.Name(), "attempt", attempt)
	return engine, nil
}

// State reports where the loader is in its lifecycle
func (l *Loader) State() LoaderState {
	switch {
	case l.ready.Load() != nil:
		return StateReady
	case l.loading.Load():
		return StateLoading
	default:
		return StateUninitialized
	}
}

// Attempts counts how many times the factory has been invoked
func (l *Loader) Attempts() int64 {
	return l.attempts.Load()
}

// Close releases a loaded engine that holds resources, such as the PDFium
// pool. It is meant for process shutdown: the loader stays ready afterwards.
func (l *Loader) Close() error {
	r := l.ready.Load()
	if r == nil {
		return nil
	}
	if closer, ok := r.engine.(io.Closer); ok {
		Logger.Info("Closing render engine", "backend", r.engine.Name())
		return closer.Close()
	}
	return nil
}
