package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/broker"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/realtime"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// Dependencies are the event consumers and loops started by the worker.
// Producer, Relay and Metrics are optional.
type Dependencies struct {
	Dispatcher    events.Dispatcher
	Notifications *service.NotificationService
	Producer      *broker.Producer
	Hub           *realtime.Hub
	Relay         *realtime.RedisRelay
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

// NotificationWorker owns the background side of ticket events.
type NotificationWorker struct {
	deps   Dependencies
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// StartNotificationWorker registers notification handlers and the event
// exporter, then starts the cross-instance relay loop.
func StartNotificationWorker(ctx context.Context, deps Dependencies) *NotificationWorker {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	w := &NotificationWorker{deps: deps, cancel: cancel}

	if deps.Notifications != nil {
		deps.Notifications.RegisterHandlers()
	}
	if deps.Producer != nil && deps.Dispatcher != nil {
		deps.Producer.Register(deps.Dispatcher)
		if deps.Producer.Enabled() {
			deps.Logger.Info("exporting ticket events to kafka")
		}
	}
	if deps.Metrics != nil && deps.Hub != nil {
		hub := deps.Hub
		deps.Metrics.RegisterGauge("realtime_connections", func() int64 { return int64(hub.Connections()) })
		deps.Metrics.RegisterGauge("realtime_dropped_frames", hub.Dropped)
	}
	if deps.Relay != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := deps.Relay.Run(ctx); err != nil {
				deps.Logger.Error("realtime relay stopped", zap.Error(err))
			}
		}()
	}
	return w
}

// Stop ends background loops and flushes the event exporter.
func (w *NotificationWorker) Stop() {
	if w == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
	if w.deps.Producer != nil {
		if err := w.deps.Producer.Close(); err != nil {
			w.deps.Logger.Warn("kafka producer close", zap.Error(err))
		}
	}
}
