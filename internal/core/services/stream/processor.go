package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/piwardrive/piwardrive/internal/core/domain"
	"github.com/piwardrive/piwardrive/internal/core/ports"
	"github.com/piwardrive/piwardrive/internal/core/services/fingerprint"
	"github.com/piwardrive/piwardrive/internal/core/services/security"
	"github.com/piwardrive/piwardrive/internal/telemetry"
)

const (
	defaultIngestSize     = 1000
	defaultSubscriberSize = 100
	defaultRateLimit      = 20.0 // messages per second
)

// Message is one broadcast unit delivered to every subscriber.
type Message struct {
	Timestamp    time.Time                    `json:"timestamp"`
	Source       domain.SourceKind            `json:"source"`
	Records      any                          `json:"records"`
	Stats        map[string]uint64            `json:"stats"`
	Fingerprints []*domain.NetworkFingerprint `json:"fingerprints,omitempty"`
	Alerts       []*domain.SuspiciousActivity `json:"alerts,omitempty"`
}

// Event wraps a message with the subscriber-local sequence number. Sequence
// numbers are strictly increasing per subscriber; gaps appear only where the
// subscriber's queue was full and the message was dropped for it.
type Event struct {
	Seq     uint64   `json:"seq"`
	Message *Message `json:"message"`
}

// Subscriber is one registered fan-out target.
type Subscriber struct {
	C   chan Event
	seq uint64
}

// AnalyticsSink receives the derived analytics produced during processing.
type AnalyticsSink interface {
	InsertFingerprints(ctx context.Context, fps []*domain.NetworkFingerprint) error
	InsertSuspicious(ctx context.Context, acts []*domain.SuspiciousActivity) error
}

type ingestItem struct {
	source  domain.SourceKind
	payload any
}

// Processor accepts detection batches, runs per-source processing and fans
// the result out to subscribers. The ingest queue is bounded; when full, the
// oldest queued item is dropped to admit the new one. Subscriber queues are
// bounded and lossy: a full subscriber silently misses the message.
type Processor struct {
	fingerprints *fingerprint.Service
	detectors    *security.Engine
	analytics    AnalyticsSink
	notifier     ports.Notifier

	rateLimit      float64
	subscriberSize int

	mu          sync.Mutex
	ingest      chan ingestItem
	subscribers map[*Subscriber]struct{}
	stats       map[string]uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// Option tweaks processor construction; used mainly by tests.
type Option func(*Processor)

func WithIngestSize(n int) Option {
	return func(p *Processor) { p.ingest = make(chan ingestItem, n) }
}

func WithSubscriberSize(n int) Option {
	return func(p *Processor) { p.subscriberSize = n }
}

func WithRateLimit(perSecond float64) Option {
	return func(p *Processor) { p.rateLimit = perSecond }
}

// New creates a processor. Any of the collaborator arguments may be nil; the
// corresponding step is skipped.
func New(fp *fingerprint.Service, detectors *security.Engine, analytics AnalyticsSink,
	notifier ports.Notifier, opts ...Option) *Processor {
	p := &Processor{
		fingerprints:   fp,
		detectors:      detectors,
		analytics:      analytics,
		notifier:       notifier,
		rateLimit:      defaultRateLimit,
		subscriberSize: defaultSubscriberSize,
		ingest:         make(chan ingestItem, defaultIngestSize),
		subscribers:    make(map[*Subscriber]struct{}),
		stats:          make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the dispatch loop.
func (p *Processor) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx)
}

// Stop terminates the dispatch loop and waits for it to exit.
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

// PublishWifi implements ports.StreamPublisher.
func (p *Processor) PublishWifi(ctx context.Context, records []*domain.WifiDetection) {
	p.enqueue(domain.SourceWifi, records)
}

// PublishBluetooth implements ports.StreamPublisher.
func (p *Processor) PublishBluetooth(ctx context.Context, records []*domain.BluetoothDetection) {
	p.enqueue(domain.SourceBluetooth, records)
}

// PublishCellular implements ports.StreamPublisher.
func (p *Processor) PublishCellular(ctx context.Context, records []*domain.CellularDetection) {
	p.enqueue(domain.SourceCellular, records)
}

var _ ports.StreamPublisher = (*Processor)(nil)

// enqueue admits an item into the bounded ingest queue. On a full queue the
// oldest item is dropped first; the mutex makes drop-then-admit atomic with
// respect to concurrent publishers.
func (p *Processor) enqueue(source domain.SourceKind, payload any) {
	item := ingestItem{source: source, payload: payload}

	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case p.ingest <- item:
		return
	default:
	}
	// Full: evict the oldest, then admit.
	select {
	case <-p.ingest:
		telemetry.StreamDropped.WithLabelValues("ingest").Inc()
	default:
	}
	select {
	case p.ingest <- item:
	default:
	}
}

// Subscribe registers a new fan-out target. The returned cancel function
// removes the subscriber and closes its channel.
func (p *Processor) Subscribe() (*Subscriber, func()) {
	sub := &Subscriber{C: make(chan Event, p.subscriberSize)}

	p.mu.Lock()
	p.subscribers[sub] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, sub)
			p.mu.Unlock()
			close(sub.C)
		})
	}
	return sub, cancel
}

// SubscriberCount returns the number of registered subscribers.
func (p *Processor) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers)
}

// Stats returns a copy of the running per-source counters.
func (p *Processor) Stats() map[string]uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]uint64, len(p.stats))
	for k, v := range p.stats {
		out[k] = v
	}
	return out
}

func (p *Processor) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-p.ingest:
			p.process(ctx, item)

			// Pace the fan-out.
			if p.rateLimit > 0 {
				delay := time.Duration(float64(time.Second) / p.rateLimit)
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}
		}
	}
}

func (p *Processor) process(ctx context.Context, item ingestItem) {
	msg := &Message{
		Timestamp: time.Now().UTC(),
		Source:    item.source,
		Records:   item.payload,
	}

	if item.source == domain.SourceWifi {
		if batch, ok := item.payload.([]*domain.WifiDetection); ok {
			p.processWifi(ctx, batch, msg)
		}
	}

	count := recordCount(item.payload)
	p.mu.Lock()
	p.stats[string(item.source)] += uint64(count)
	msg.Stats = make(map[string]uint64, len(p.stats))
	for k, v := range p.stats {
		msg.Stats[k] = v
	}
	p.mu.Unlock()

	telemetry.StreamMessages.WithLabelValues(string(item.source)).Inc()
	p.broadcast(msg)
}

func (p *Processor) processWifi(ctx context.Context, batch []*domain.WifiDetection, msg *Message) {
	if p.fingerprints != nil {
		msg.Fingerprints = p.fingerprints.FingerprintBatch(batch)
	}
	if p.detectors != nil {
		msg.Alerts = p.detectors.Analyze(batch)
	}

	if p.analytics != nil {
		if len(msg.Fingerprints) > 0 {
			if err := p.analytics.InsertFingerprints(ctx, msg.Fingerprints); err != nil {
				slog.Warn("fingerprint persistence failed", "error", err)
			}
		}
		if len(msg.Alerts) > 0 {
			if err := p.analytics.InsertSuspicious(ctx, msg.Alerts); err != nil {
				slog.Warn("suspicious activity persistence failed", "error", err)
			}
		}
	}
	if p.notifier != nil {
		for _, alert := range msg.Alerts {
			p.notifier.Notify(ctx, "suspicious_activity", alert)
		}
	}
}

// broadcast delivers the message to every subscriber with a non-blocking
// send. Full subscribers drop this message and keep their registration.
func (p *Processor) broadcast(msg *Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sub := range p.subscribers {
		sub.seq++
		select {
		case sub.C <- Event{Seq: sub.seq, Message: msg}:
		default:
			sub.seq-- // not delivered; the next event reuses the number
			telemetry.StreamDropped.WithLabelValues("subscriber").Inc()
		}
	}
}

func recordCount(payload any) int {
	switch v := payload.(type) {
	case []*domain.WifiDetection:
		return len(v)
	case []*domain.BluetoothDetection:
		return len(v)
	case []*domain.CellularDetection:
		return len(v)
	}
	return 0
}
