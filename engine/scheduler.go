package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// InitializeSchedules starts all the cron jobs (currently just the preview sweep)
func (serverHandler *ServerHandler) InitializeSchedules() (*cron.Cron, error) {
	minutes := int(serverHandler.ServerConfig.PreviewSweep / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	c := cron.New()
	var sweepJob cron.Job
	sweepJob = cron.FuncJob(serverHandler.previewSweepJobFunc)
	sweepJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(sweepJob) //ensure we don't kick off another if old one is still running
	if _, err := c.AddJob(fmt.Sprintf("@every %dm", minutes), sweepJob); err != nil {
		return nil, fmt.Errorf("unable to schedule preview sweep: %w", err)
	}
	Logger.Info("Adding preview sweep scheduler", "interval_minutes", minutes)
	c.Start()
	return c, nil
}

func (serverHandler *ServerHandler) previewSweepJobFunc() {
	// Add panic recovery to prevent entire application crash
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in preview sweep", "panic", r)
		}
	}()

	removed := serverHandler.Previews.Sweep()
	if removed > 0 {
		Logger.Info("Expired previews released", "count", removed, "remaining", serverHandler.Previews.Len())
	}
}
