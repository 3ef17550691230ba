package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/tether/pkg/audit"
	"mercator-hq/tether/pkg/config"
	"mercator-hq/tether/pkg/telemetry/metrics"
)

// Config contains configuration for the audit recorder.
type Config struct {
	// Enabled enables audit recording. A disabled recorder accepts and
	// discards events.
	Enabled bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds both the wait for queue space and each storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// FromConfig builds a recorder configuration from the audit section.
func FromConfig(cfg config.AuditConfig) *Config {
	return &Config{
		Enabled:      cfg.Enabled,
		AsyncBuffer:  cfg.AsyncBuffer,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// Recorder is an asynchronous audit.Sink.
type Recorder struct {
	storage audit.Storage
	config  *Config
	metrics *metrics.Collector
	logger  *slog.Logger

	events chan *audit.Event
	done   chan struct{}
	wg     sync.WaitGroup

	// mu guards closed. Record holds it for reading while enqueueing so
	// that Close never races with a send.
	mu     sync.RWMutex
	closed bool
}

// NewRecorder creates a recorder writing to storage and starts its worker.
// collector may be nil.
func NewRecorder(storage audit.Storage, cfg *Config, collector *metrics.Collector) *Recorder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.AsyncBuffer <= 0 {
		cfg.AsyncBuffer = 1000
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		storage: storage,
		config:  cfg,
		metrics: collector,
		logger:  slog.Default().With("component", "audit.recorder"),
		events:  make(chan *audit.Event, cfg.AsyncBuffer),
		done:    make(chan struct{}),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("audit recorder initialized",
		"enabled", cfg.Enabled,
		"async_buffer", cfg.AsyncBuffer,
		"write_timeout", cfg.WriteTimeout,
	)

	return r
}

// Record implements audit.Sink. The event is stamped and queued; the caller
// must not modify it afterwards.
func (r *Recorder) Record(ctx context.Context, ev *audit.Event) error {
	if !r.config.Enabled {
		return nil
	}

	audit.Prepare(ev)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.metrics.RecordAuditDropped("closed")
		return audit.NewRecorderError(ev.ID, audit.ErrRecorderClosed)
	}

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r.events <- ev:
		r.logger.Debug("audit event enqueued",
			"event_id", ev.ID,
			"policy_id", ev.PolicyID,
			"kind", ev.Kind,
		)
		return nil
	case <-timer.C:
		r.logger.Error("audit channel full, dropping event",
			"event_id", ev.ID,
			"policy_id", ev.PolicyID,
			"channel_capacity", r.config.AsyncBuffer,
		)
		r.metrics.RecordAuditDropped("full")
		return audit.NewRecorderError(ev.ID, context.DeadlineExceeded)
	case <-ctx.Done():
		r.metrics.RecordAuditDropped("canceled")
		return audit.NewRecorderError(ev.ID, ctx.Err())
	}
}

// Close stops accepting events and waits until every queued event is written.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	r.logger.Info("shutting down audit recorder")
	r.wg.Wait()
	r.logger.Info("audit recorder shut down complete")
	return nil
}

// worker drains the queue in order.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case ev := <-r.events:
			r.write(ev)

		case <-r.done:
			r.logger.Info("draining audit channel before shutdown",
				"pending_count", len(r.events),
			)
			for {
				select {
				case ev := <-r.events:
					r.write(ev)
				default:
					return
				}
			}
		}
	}
}

// write stores a single event.
func (r *Recorder) write(ev *audit.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, ev); err != nil {
		r.logger.Error("failed to store audit event",
			"event_id", ev.ID,
			"policy_id", ev.PolicyID,
			"error", err,
		)
		r.metrics.RecordAuditDropped("storage")
		return
	}

	r.metrics.RecordAuditEvent(ev.PolicyID, string(ev.Kind))

	if d := time.Since(start); d > r.config.WriteTimeout/2 {
		r.logger.Warn("slow audit write",
			"event_id", ev.ID,
			"duration_ms", d.Milliseconds(),
		)
	}
}
