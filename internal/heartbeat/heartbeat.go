// Package heartbeat runs a periodic re-registration call for a Data Node or
// Daemon, so the Name Service's live-node set stays current without either
// server needing its own timer plumbing.
package heartbeat

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"distcompute/internal/logging"
)

// Beat re-announces a server's availability to the Name Service. Both
// datanode.Server.Register and daemon.Server.Register satisfy this.
type Beat func() error

// Heartbeat periodically invokes a Beat on a fixed interval.
type Heartbeat struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// Start begins calling beat every interval, starting immediately. A failed
// beat is logged and retried on the next tick. The Name Service keeps an
// address in its live set once registered; a missed heartbeat does not
// remove it.
func Start(interval time.Duration, beat Beat, logger *slog.Logger) (*Heartbeat, error) {
	logger = logging.Default(logger).With("component", "heartbeat")

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create heartbeat scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := beat(); err != nil {
				logger.Warn("heartbeat failed", "error", err)
			}
		}),
		gocron.WithName("heartbeat"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule heartbeat job: %w", err)
	}

	scheduler.Start()
	return &Heartbeat{scheduler: scheduler, logger: logger}, nil
}

// Stop shuts down the scheduler, waiting for any in-flight beat to finish.
func (h *Heartbeat) Stop() error {
	return h.scheduler.Shutdown()
}
