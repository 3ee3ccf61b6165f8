package events

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/perchhq/perch-sync/internal/cache"
	"github.com/perchhq/perch-sync/internal/observability"
	"github.com/perchhq/perch-sync/pkg/models"
)

// Sink receives events after the canonical merge. The shell registers a
// sink that forwards to whichever view is currently active, tagged with
// the view generation.
type Sink interface {
	OnEvent(ev models.Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev models.Event)

// OnEvent implements Sink.
func (f SinkFunc) OnEvent(ev models.Event) { f(ev) }

// Dispatcher classifies inbound domain events and applies them in two
// stages: a canonical merge of every carried snapshot into the entity
// cache, then a forward of the same event to the active view sink.
//
// The two stages exist because the cache holds canonical entity state
// while views hold derived, query-shaped presentation state the cache
// cannot represent generically. The merge is unconditional and view
// independent; only the view forward is subject to generation checks,
// performed by the sink's owner.
//
// Events apply strictly in arrival order; no reordering or coalescing.
type Dispatcher struct {
	cache   *cache.Store
	sink    Sink
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// New creates a dispatcher writing through to store. sink and metrics
// may be nil.
func New(store *cache.Store, sink Sink, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cache:   store,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
	}
}

// WithTracer enables a span per applied event batch.
func (d *Dispatcher) WithTracer(tracer *observability.Tracer) *Dispatcher {
	d.tracer = tracer
	return d
}

// Dispatch decodes a raw result-frame payload and applies it.
func (d *Dispatcher) Dispatch(raw []byte) {
	d.Apply(Decode(raw))
}

// Apply runs the two-stage application for an already decoded event.
// Unknown events are a no-op at both stages.
func (d *Dispatcher) Apply(ev models.Event) {
	if !ev.Known() {
		d.metrics.EventDropped(ev.RawType)
		d.logger.Debug("dropped unknown event", "raw_type", ev.RawType)
		return
	}

	_, span := d.tracer.Start(context.Background(), "event.apply",
		attribute.String("event.type", string(ev.Type)))
	defer observability.End(span, nil)

	snaps := ev.Snapshots()
	applied := d.cache.PutMany(snaps)
	span.SetAttributes(
		attribute.Int("event.snapshots", len(snaps)),
		attribute.Int("event.applied", applied),
	)
	d.metrics.EventApplied(string(ev.Type), applied, len(snaps)-applied)
	d.metrics.CacheSize(d.cache.Len())

	if d.sink != nil {
		d.sink.OnEvent(ev)
	}
}
