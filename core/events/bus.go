package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adalundhe/skillvcs/core/versioning"
)

var (
	ErrBusClosed  = errors.New("event bus is closed")
	ErrBufferFull = errors.New("event buffer full")
)

const (
	defaultBufferSize     = 1000
	defaultDebounceWindow = 100 * time.Millisecond
)

// Debouncer drops repeats of the same event signature inside a window.
type Debouncer struct {
	window time.Duration
	now    func() time.Time
	seen   map[string]time.Time
	mu     sync.Mutex
}

func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = defaultDebounceWindow
	}
	return &Debouncer{
		window: window,
		now:    time.Now,
		seen:   make(map[string]time.Time),
	}
}

// ShouldSkip reports whether an identical event was seen within the window.
func (d *Debouncer) ShouldSkip(event *VersionEvent) bool {
	sig := signature(event)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.seen[sig]; ok && now.Sub(last) <= d.window {
		return true
	}
	d.seen[sig] = now
	return false
}

// Only comparisons repeat with identical payloads, so the signature includes
// the data of the event.
func signature(event *VersionEvent) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", event.Kind, event.DocumentID, event.VersionLabel, event.Actor, event.Data["from"])
}

// Cleanup removes expired signatures.
func (d *Debouncer) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.now().Add(-d.window)
	for sig, last := range d.seen {
		if last.Before(cutoff) {
			delete(d.seen, sig)
		}
	}
}

type BusConfig struct {
	BufferSize int
	// DebounceKinds lists the event kinds subject to debouncing. Mutation
	// events are never debounced unless listed here.
	DebounceKinds  []versioning.EventKind
	DebounceWindow time.Duration
	Logger         *slog.Logger
}

// Bus fans version events out to subscribers from a single dispatch
// goroutine. It implements versioning.Notifier.
type Bus struct {
	subscribers map[versioning.EventKind][]Subscriber
	wildcard    []Subscriber
	buffer      chan *VersionEvent
	debouncer   *Debouncer
	debounced   map[versioning.EventKind]bool
	logger      *slog.Logger

	mu         sync.RWMutex
	dispatchMu sync.Mutex
	started    bool
	closed     bool
	done       chan struct{}
	wg         sync.WaitGroup
}

func NewBus(cfg BusConfig) *Bus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DebounceKinds == nil {
		cfg.DebounceKinds = []versioning.EventKind{versioning.EventVersionCompared}
	}
	debounced := make(map[versioning.EventKind]bool, len(cfg.DebounceKinds))
	for _, k := range cfg.DebounceKinds {
		debounced[k] = true
	}

	return &Bus{
		subscribers: make(map[versioning.EventKind][]Subscriber),
		buffer:      make(chan *VersionEvent, cfg.BufferSize),
		debouncer:   NewDebouncer(cfg.DebounceWindow),
		debounced:   debounced,
		logger:      cfg.Logger.With("component", "events"),
		done:        make(chan struct{}),
	}
}

// Notify queues a manager notification. It never blocks; a full buffer
// drops the event and reports ErrBufferFull.
func (b *Bus) Notify(_ context.Context, n versioning.Notification) error {
	return b.Publish(NewVersionEvent(n))
}

func (b *Bus) Publish(event *VersionEvent) error {
	// Held across the send so Close cannot drain before the event lands.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	if b.debounced[event.Kind] && b.debouncer.ShouldSkip(event) {
		return nil
	}

	select {
	case b.buffer <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

func (b *Bus) Subscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	kinds := sub.Kinds()
	if len(kinds) == 0 {
		b.wildcard = append(b.wildcard, sub)
		return
	}
	for _, k := range kinds {
		b.subscribers[k] = append(b.subscribers[k], sub)
	}
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.wildcard = withoutSubscriber(b.wildcard, id)
	for k, subs := range b.subscribers {
		b.subscribers[k] = withoutSubscriber(subs, id)
	}
}

func withoutSubscriber(subs []Subscriber, id string) []Subscriber {
	kept := make([]Subscriber, 0, len(subs))
	for _, s := range subs {
		if s.ID() != id {
			kept = append(kept, s)
		}
	}
	return kept
}

func (b *Bus) Start() {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed || b.started {
		return
	}
	b.started = true
	b.wg.Add(1)
	go b.dispatch()
}

func (b *Bus) dispatch() {
	defer b.wg.Done()

	cleanup := time.NewTicker(time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case event := <-b.buffer:
			b.deliver(event)
		case <-cleanup.C:
			b.debouncer.Cleanup()
		case <-b.done:
			b.drain()
			return
		}
	}
}

// drain delivers whatever is still buffered at shutdown.
func (b *Bus) drain() {
	for {
		select {
		case event := <-b.buffer:
			b.deliver(event)
		default:
			return
		}
	}
}

func (b *Bus) deliver(event *VersionEvent) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.wildcard)+len(b.subscribers[event.Kind]))
	subs = append(subs, b.wildcard...)
	subs = append(subs, b.subscribers[event.Kind]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliverTo(sub, event)
	}
}

func (b *Bus) deliverTo(sub Subscriber, event *VersionEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked", "subscriber", sub.ID(), "event", event.Kind, "panic", r)
		}
	}()
	if err := sub.OnEvent(event); err != nil {
		b.logger.Warn("subscriber failed", "subscriber", sub.ID(), "event", event.Kind, "error", err)
	}
}

// Close stops accepting events, flushes the buffer and waits for dispatch to
// finish.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.dispatchMu.Lock()
	started := b.started
	b.dispatchMu.Unlock()

	close(b.done)
	if started {
		b.wg.Wait()
		return
	}
	b.drain()
}
