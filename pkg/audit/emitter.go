package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/domain"
	"github.com/platinummonkey/warden/pkg/observability"
)

// Emitter records audit entries. Emit never blocks the caller's mutation
// and never fails it: records that cannot be persisted are logged and
// counted.
type Emitter interface {
	Emit(ctx context.Context, rec *Record)
}

// Sink persists audit records
type Sink interface {
	Write(ctx context.Context, rec *Record) error
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(ctx context.Context, rec *Record) error

// Write calls f
func (f SinkFunc) Write(ctx context.Context, rec *Record) error {
	return f(ctx, rec)
}

// NopEmitter discards every record
type NopEmitter struct{}

// Emit does nothing
func (NopEmitter) Emit(context.Context, *Record) {}

// EmitterConfig holds async emitter settings
type EmitterConfig struct {
	BufferSize   int
	Workers      int
	WriteTimeout time.Duration
}

const (
	failureQueueFull = "queue_full"
	failureInvalid   = "invalid"
	failureSink      = "sink_error"
	failureClosed    = "closed"
)

// AsyncEmitter buffers records on a bounded queue drained by a fixed worker
// pool. When the queue is full the record is dropped.
type AsyncEmitter struct {
	sink    Sink
	config  EmitterConfig
	metrics *observability.Metrics
	logger  *observability.Logger
	now     func() time.Time

	queue  chan *Record
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewAsyncEmitter creates an emitter and starts its workers. metrics may be nil.
func NewAsyncEmitter(sink Sink, config EmitterConfig, metrics *observability.Metrics, logger *observability.Logger) *AsyncEmitter {
	if config.BufferSize <= 0 {
		config.BufferSize = 1024
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	e := &AsyncEmitter{
		sink:    sink,
		config:  config,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		queue:   make(chan *Record, config.BufferSize),
	}
	for i := 0; i < config.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Emit enqueues rec. The record is stamped with an ID and time if missing.
func (e *AsyncEmitter) Emit(ctx context.Context, rec *Record) {
	if rec == nil {
		return
	}
	if rec.TenantID == uuid.Nil {
		e.fail(rec, failureInvalid, errors.New("audit record has no tenant"))
		return
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = e.now().UTC()
	}
	if rec.Status == "" {
		rec.Status = StatusSuccess
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.fail(rec, failureClosed, errors.New("audit emitter closed"))
		return
	}

	select {
	case e.queue <- rec:
		e.setDepth()
	default:
		e.fail(rec, failureQueueFull, errors.New("audit queue full"))
	}
}

func (e *AsyncEmitter) worker() {
	defer e.wg.Done()
	for rec := range e.queue {
		e.setDepth()
		e.write(rec)
	}
}

func (e *AsyncEmitter) write(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.WriteTimeout)
	defer cancel()

	err := observability.CallSafely(e.logger, "audit sink", func() error {
		return e.sink.Write(ctx, rec)
	})
	if err != nil {
		e.fail(rec, failureSink, err)
		return
	}
	if e.metrics != nil {
		e.metrics.AuditEmittedTotal.WithLabelValues(string(rec.Action)).Inc()
	}
}

func (e *AsyncEmitter) fail(rec *Record, reason string, err error) {
	if e.metrics != nil {
		e.metrics.AuditEmissionFailuresTotal.WithLabelValues(reason).Inc()
	}
	e.logger.WithError(errors.Join(domain.ErrAuditEmission, err)).WithFields(map[string]interface{}{
		"reason":    reason,
		"action":    string(rec.Action),
		"tenant_id": rec.TenantID.String(),
		"target_id": rec.TargetID,
	}).Error("Failed to emit audit record")
}

func (e *AsyncEmitter) setDepth() {
	if e.metrics != nil {
		e.metrics.AuditQueueDepth.Set(float64(len(e.queue)))
	}
}

// Healthy reports an error once the emitter is closed or its queue is at
// least 90% full, the point where records are about to be dropped
func (e *AsyncEmitter) Healthy(context.Context) error {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return errors.New("audit emitter closed")
	}
	if depth, capacity := len(e.queue), cap(e.queue); depth*10 >= capacity*9 {
		return fmt.Errorf("audit queue at %d of %d", depth, capacity)
	}
	return nil
}

// Close stops accepting records and waits for queued ones to be written or
// for ctx to expire.
func (e *AsyncEmitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
