// Package syncer flushes locally recorded changes to the remote API.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/charlesng35/dealcache/internal/connectivity"
	"github.com/charlesng35/dealcache/internal/gateway"
	"github.com/charlesng35/dealcache/internal/models"
	"github.com/charlesng35/dealcache/internal/monitoring"
	"github.com/charlesng35/dealcache/internal/realtime"
	"github.com/charlesng35/dealcache/internal/services"
	"github.com/charlesng35/dealcache/pkg/logger"
)

// Phase names, in execution order.
const (
	PhaseSaved     = "saved"
	PhaseFavorites = "favorites"
	PhaseActions   = "actions"
	PhaseQueue     = "queue"
)

const passKey = "synchronize"

// Monitor is the reachability source the engine consults and watches.
type Monitor interface {
	IsOnline() bool
	Subscribe() (<-chan connectivity.Transition, func())
}

// Stores groups the local sources of unsynced records.
type Stores struct {
	Saved     *services.SavedItemService
	Favorites *services.FavoriteService
	Actions   *services.ActionLogService
	Queue     *services.SyncQueueService
}

// PhaseReport counts the records one phase handled.
type PhaseReport struct {
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// Report summarises one synchronisation pass.
type Report struct {
	Skipped    bool        `json:"skipped"`
	Reason     string      `json:"reason,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Saved      PhaseReport `json:"saved"`
	Favorites  PhaseReport `json:"favorites"`
	Actions    PhaseReport `json:"actions"`
	Queue      PhaseReport `json:"queue"`
}

// Failed reports the total number of records that could not be delivered.
func (r Report) Failed() int {
	return r.Saved.Failed + r.Favorites.Failed + r.Actions.Failed + r.Queue.Failed
}

// Option customises an Engine.
type Option func(*Engine)

// WithPublisher broadcasts each report on the sync stream.
func WithPublisher(p realtime.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithBatchSizes overrides the per-pass action and queue limits.
func WithBatchSizes(actions, queue int) Option {
	return func(e *Engine) {
		if actions > 0 {
			e.actionBatch = actions
		}
		if queue > 0 {
			e.queueBatch = queue
		}
	}
}

// Engine runs synchronisation passes. Overlapping calls share a single pass.
type Engine struct {
	stores    Stores
	gateway   gateway.Gateway
	monitor   Monitor
	publisher realtime.Publisher
	now       func() time.Time
	log       *zap.Logger

	actionBatch int
	queueBatch  int

	group singleflight.Group
}

// NewEngine wires an Engine.
func NewEngine(stores Stores, gw gateway.Gateway, monitor Monitor, opts ...Option) (*Engine, error) {
	if stores.Saved == nil || stores.Favorites == nil || stores.Actions == nil || stores.Queue == nil {
		return nil, errors.New("syncer: all stores are required")
	}
	if gw == nil {
		return nil, errors.New("syncer: gateway is required")
	}
	if monitor == nil {
		return nil, errors.New("syncer: connectivity monitor is required")
	}

	e := &Engine{
		stores:      stores,
		gateway:     gw,
		monitor:     monitor,
		now:         time.Now,
		log:         logger.WithModule("syncer"),
		actionBatch: services.DefaultActionBatch,
		queueBatch:  services.DefaultQueueBatch,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Synchronize pushes unsynced saved items, favorites and actions, then drains the operation
// queue. Nothing is attempted while offline. A call made while a pass is running waits for
// and returns that pass's report.
func (e *Engine) Synchronize(ctx context.Context) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ch := e.group.DoChan(passKey, func() (any, error) {
		return e.run(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case res := <-ch:
		report, _ := res.Val.(Report)
		return report, res.Err
	}
}

func (e *Engine) run(ctx context.Context) (Report, error) {
	report := Report{StartedAt: e.now().UTC()}

	if !e.monitor.IsOnline() {
		report.Skipped = true
		report.Reason = "offline"
		report.FinishedAt = report.StartedAt
		monitoring.RecordSyncPass("skipped", 0)
		return report, nil
	}

	var errs error
	errs = multierr.Append(errs, e.syncSaved(ctx, &report.Saved))
	errs = multierr.Append(errs, e.syncFavorites(ctx, &report.Favorites))
	errs = multierr.Append(errs, e.syncActions(ctx, &report.Actions))
	errs = multierr.Append(errs, e.drainQueue(ctx, &report.Queue))

	report.FinishedAt = e.now().UTC()
	duration := report.FinishedAt.Sub(report.StartedAt)

	result := "success"
	switch {
	case errs != nil:
		result = "error"
	case report.Failed() > 0:
		result = "partial"
	}
	monitoring.RecordSyncPass(result, duration)
	e.recordQueueDepth(ctx)

	fields := []zap.Field{
		zap.String("result", result),
		zap.Int("saved", report.Saved.Succeeded),
		zap.Int("favorites", report.Favorites.Succeeded),
		zap.Int("actions", report.Actions.Succeeded),
		zap.Int("queue", report.Queue.Succeeded),
		zap.Int("failed", report.Failed()),
	}
	if errs != nil {
		e.log.Warn("synchronisation pass finished with errors", append(fields, zap.Error(errs))...)
	} else {
		e.log.Info("synchronisation pass finished", fields...)
	}

	e.publish(report)
	return report, errs
}

func (e *Engine) syncSaved(ctx context.Context, phase *PhaseReport) error {
	items, err := e.stores.Saved.Unsynced(ctx, "")
	if err != nil {
		return phase.abort(PhaseSaved, err)
	}

	var delivered []models.SavedItem
	for _, item := range items {
		phase.Attempted++
		if err := e.gateway.PushSavedItem(ctx, item); err != nil {
			phase.Failed++
			e.log.Debug("saved item push failed", zap.String("id", item.ID), zap.Error(err))
			continue
		}
		delivered = append(delivered, item)
	}

	if _, err := e.stores.Saved.MarkDelivered(ctx, delivered); err != nil {
		return phase.abort(PhaseSaved, err)
	}
	phase.Succeeded = len(delivered)
	monitoring.RecordSyncItems(PhaseSaved, phase.Succeeded, phase.Failed)
	return nil
}

func (e *Engine) syncFavorites(ctx context.Context, phase *PhaseReport) error {
	rows, err := e.stores.Favorites.Unsynced(ctx)
	if err != nil {
		return phase.abort(PhaseFavorites, err)
	}

	var delivered []models.Favorite
	for _, row := range rows {
		phase.Attempted++
		if err := e.gateway.PushFavorite(ctx, row); err != nil {
			phase.Failed++
			e.log.Debug("favorite push failed", zap.String("deal_id", row.DealID), zap.Error(err))
			continue
		}
		delivered = append(delivered, row)
	}

	if _, err := e.stores.Favorites.MarkDelivered(ctx, delivered); err != nil {
		return phase.abort(PhaseFavorites, err)
	}
	phase.Succeeded = len(delivered)
	monitoring.RecordSyncItems(PhaseFavorites, phase.Succeeded, phase.Failed)
	return nil
}

func (e *Engine) syncActions(ctx context.Context, phase *PhaseReport) error {
	rows, err := e.stores.Actions.Unsynced(ctx, e.actionBatch)
	if err != nil {
		return phase.abort(PhaseActions, err)
	}

	var delivered []uint
	for _, row := range rows {
		phase.Attempted++
		if err := e.gateway.PushAction(ctx, row); err != nil {
			phase.Failed++
			e.log.Debug("action push failed", zap.Uint("id", row.ID), zap.Error(err))
			continue
		}
		delivered = append(delivered, row.ID)
	}

	if _, err := e.stores.Actions.MarkSynced(ctx, delivered); err != nil {
		return phase.abort(PhaseActions, err)
	}
	phase.Succeeded = len(delivered)
	monitoring.RecordSyncItems(PhaseActions, phase.Succeeded, phase.Failed)
	return nil
}

func (e *Engine) drainQueue(ctx context.Context, phase *PhaseReport) error {
	ops, err := e.stores.Queue.Pending(ctx, e.queueBatch)
	if err != nil {
		return phase.abort(PhaseQueue, err)
	}

	var errs error
	for _, op := range ops {
		phase.Attempted++
		if err := e.replay(ctx, op); err != nil {
			phase.Failed++
			e.log.Debug("queued operation failed",
				zap.Uint("id", op.ID),
				zap.String("type", op.OperationType),
				zap.Int("retry_count", op.RetryCount+1),
				zap.Error(err),
			)
			errs = multierr.Append(errs, e.stores.Queue.Fail(ctx, op.ID, err))
			continue
		}
		if err := e.stores.Queue.Complete(ctx, op.ID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		phase.Succeeded++
	}

	monitoring.RecordSyncItems(PhaseQueue, phase.Succeeded, phase.Failed)
	if errs != nil {
		phase.Error = errs.Error()
		return fmt.Errorf("syncer: %s phase: %w", PhaseQueue, errs)
	}
	return nil
}

func (e *Engine) replay(ctx context.Context, op models.SyncOperation) error {
	payload := []byte(op.Payload)
	switch op.OperationType {
	case models.SyncOperationCreate:
		return e.gateway.Create(ctx, op.Endpoint, payload)
	case models.SyncOperationUpdate:
		return e.gateway.Update(ctx, op.Endpoint, payload)
	case models.SyncOperationDelete:
		return e.gateway.Delete(ctx, op.Endpoint, payload)
	default:
		return fmt.Errorf("unsupported operation type %q", op.OperationType)
	}
}

func (e *Engine) recordQueueDepth(ctx context.Context) {
	pending, stalled, err := e.stores.Queue.Depth(ctx)
	if err != nil {
		e.log.Debug("queue depth unavailable", zap.Error(err))
		return
	}
	monitoring.SetQueueDepth(pending, stalled)
}

func (e *Engine) publish(report Report) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish("", realtime.Message{
		Stream: realtime.StreamSync,
		Event:  "sync.completed",
		Data:   report,
	})
}

func (p *PhaseReport) abort(name string, err error) error {
	p.Error = err.Error()
	return fmt.Errorf("syncer: %s phase: %w", name, err)
}
