package analyze

import (
	"context"
	"fmt"
	"log/slog"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/finchlyline/relsleuth/internal/model"
)

// heartbeatTicker signals liveness to the caller's endpoint while a
// job is running. Stop is deterministic: once it returns, no further
// heartbeat fires, so the terminal callback is always the last
// delivery a caller sees.
type heartbeatTicker struct {
	scheduler gocron.Scheduler
}

func startHeartbeat(ctx context.Context, notifier *Notifier, cfg model.HeartbeatConfig) (*heartbeatTicker, error) {
	period, err := cfg.Duration()
	if err != nil {
		return nil, fmt.Errorf("heartbeat config: %w", err)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(period),
		gocron.NewTask(func() {
			if err := notifier.Deliver(ctx, cfg.Target, nil); err != nil {
				slog.WarnContext(ctx, "heartbeat delivery failed", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}

	scheduler.Start()
	slog.DebugContext(ctx, "heartbeat started", "uri", cfg.URI, "period", period.String())
	return &heartbeatTicker{scheduler: scheduler}, nil
}

func (t *heartbeatTicker) Stop(ctx context.Context) {
	if t == nil {
		return
	}
	if err := t.scheduler.Shutdown(); err != nil {
		slog.ErrorContext(ctx, "shutting down heartbeat scheduler failed", "error", err)
	}
}
