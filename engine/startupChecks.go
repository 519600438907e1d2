package engine

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

const warmupTimeout = 2 * time.Minute

// storageCheckPath is written and removed again to prove the object store is usable
const storageCheckPath = ".startup-check"

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	if err := serverHandler.objectStoreChecks(); err != nil {
		return err
	}
	if serverHandler.ServerConfig.EngineWarmup {
		serverHandler.warmupEngine()
	}
	return nil
}

// objectStoreChecks round-trips a small object through the store
func (serverHandler *ServerHandler) objectStoreChecks() error {
	ctx := context.Background()
	want := []byte(time.Now().UTC().Format(time.RFC3339Nano))

	if err := serverHandler.Objects.Write(ctx, storageCheckPath, want); err != nil {
		Logger.Error("Object store is not writable", "error", err)
		return fmt.Errorf("object store is not writable: %w", err)
	}
	got, err := serverHandler.Objects.Read(ctx, storageCheckPath)
	if err != nil {
		Logger.Error("Object store is not readable", "error", err)
		return fmt.Errorf("object store is not readable: %w", err)
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("object store returned %d bytes, wrote %d", len(got), len(want))
	}
	if err := serverHandler.Objects.Delete(ctx, storageCheckPath); err != nil {
		Logger.Error("Unable to delete from object store", "error", err)
		return fmt.Errorf("unable to delete from object store: %w", err)
	}

	Logger.Info("Object store is usable")
	return nil
}

// warmupEngine loads the render engine before the first request needs it.
// A failure is only logged: the next conversion retries the load.
func (serverHandler *ServerHandler) warmupEngine() {
	ctx, cancel := context.WithTimeout(context.Background(), warmupTimeout)
	defer cancel()

	start := time.Now()
	engine, err := serverHandler.Converter.Loader().Acquire(ctx)
	if err != nil {
		Logger.Warn("Render engine warm-up failed, will retry on first conversion", "error", err)
		return
	}
	Logger.Info("Render engine warmed up", "backend", engine.Name(), "took", time.Since(start))
}
