// Package dispatch decouples event detection from consumption with a
// bounded queue and fan-out delivery to registered consumers.
package dispatch

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openacoustics/inaudible-monitor/internal/detect"
)

// Consumer receives confirmed events. Errors are logged and isolated; they
// never affect other consumers or subsequent events.
type Consumer interface {
	Consume(ev detect.Event) error
}

// ConsumerFunc adapts a plain function to the Consumer interface.
type ConsumerFunc func(ev detect.Event) error

func (f ConsumerFunc) Consume(ev detect.Event) error {
	return f(ev)
}

// Config contains dispatcher configuration
type Config struct {
	QueueSize       int
	ConsumerTimeout time.Duration
}

// DefaultConfig returns the stock dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:       256,
		ConsumerTimeout: 5 * time.Second,
	}
}

// Validate checks the dispatcher configuration
func (c *Config) Validate() error {
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	}
	if c.ConsumerTimeout <= 0 {
		return fmt.Errorf("consumer timeout must be positive, got %v", c.ConsumerTimeout)
	}
	return nil
}

type registration struct {
	name     string
	consumer Consumer
}

// Dispatcher fans confirmed events out to registered consumers. Emit never
// blocks the detection path: when the queue is full the oldest queued event
// is dropped and counted.
type Dispatcher struct {
	config Config
	logger *slog.Logger

	queue chan detect.Event

	// Registration order is preserved for delivery.
	consumers []registration
	consMu    sync.RWMutex

	emitted        uint64
	delivered      uint64
	dropped        uint64
	deliveryErrors uint64
	statsMu        sync.Mutex

	closed  bool
	closeMu sync.Mutex
	wg      sync.WaitGroup
}

// Stats represents dispatcher statistics
type Stats struct {
	QueueSize      int    `json:"queue_size"`
	QueueCapacity  int    `json:"queue_capacity"`
	Consumers      int    `json:"consumers"`
	EventsEmitted  uint64 `json:"events_emitted"`
	EventsDropped  uint64 `json:"events_dropped"`
	Delivered      uint64 `json:"deliveries"`
	DeliveryErrors uint64 `json:"delivery_errors"`
}

// New creates a dispatcher and starts its delivery loop.
func New(config Config, logger *slog.Logger) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		config: config,
		logger: logger,
		queue:  make(chan detect.Event, config.QueueSize),
	}

	d.wg.Add(1)
	go d.deliveryLoop()

	return d, nil
}

// Register adds a named consumer. A consumer registered under an existing
// name replaces the previous one. In-flight events are unaffected.
func (d *Dispatcher) Register(name string, c Consumer) {
	d.consMu.Lock()
	defer d.consMu.Unlock()

	for i := range d.consumers {
		if d.consumers[i].name == name {
			d.consumers[i].consumer = c
			return
		}
	}

	d.consumers = append(d.consumers, registration{name: name, consumer: c})
	d.logger.Debug("Consumer registered", slog.String("consumer", name))
}

// Unregister removes a named consumer. Events already queued are still
// delivered to the remaining consumers.
func (d *Dispatcher) Unregister(name string) {
	d.consMu.Lock()
	defer d.consMu.Unlock()

	for i := range d.consumers {
		if d.consumers[i].name == name {
			d.consumers = append(d.consumers[:i], d.consumers[i+1:]...)
			d.logger.Debug("Consumer unregistered", slog.String("consumer", name))
			return
		}
	}
}

// Emit queues an event for delivery without blocking. When the queue is at
// capacity the oldest queued event is dropped to make room.
func (d *Dispatcher) Emit(ev detect.Event) {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()

	if d.closed {
		return
	}

	d.statsMu.Lock()
	d.emitted++
	d.statsMu.Unlock()

	select {
	case d.queue <- ev:
		return
	default:
	}

	// Queue full: shed the oldest event. The delivery loop may race us for
	// it, in which case the retry below succeeds without a drop.
	select {
	case old := <-d.queue:
		d.statsMu.Lock()
		d.dropped++
		d.statsMu.Unlock()
		d.logger.Warn("Event queue full, dropping oldest event",
			slog.String("type", old.Type),
			slog.Float64("frequency_hz", old.FrequencyHz),
		)
	default:
	}

	select {
	case d.queue <- ev:
	default:
		d.statsMu.Lock()
		d.dropped++
		d.statsMu.Unlock()
	}
}

// Close stops intake, drains the remaining queue through the delivery loop,
// and returns once every queued event has been handled.
func (d *Dispatcher) Close() {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.closeMu.Unlock()

	d.wg.Wait()
}

// GetStats returns current dispatcher statistics
func (d *Dispatcher) GetStats() Stats {
	d.consMu.RLock()
	consumers := len(d.consumers)
	d.consMu.RUnlock()

	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	return Stats{
		QueueSize:      len(d.queue),
		QueueCapacity:  cap(d.queue),
		Consumers:      consumers,
		EventsEmitted:  d.emitted,
		EventsDropped:  d.dropped,
		Delivered:      d.delivered,
		DeliveryErrors: d.deliveryErrors,
	}
}

func (d *Dispatcher) deliveryLoop() {
	defer d.wg.Done()

	for ev := range d.queue {
		d.deliver(ev)
	}
}

// deliver invokes every registered consumer with the event. A failing or
// slow consumer is logged and skipped for this event only.
func (d *Dispatcher) deliver(ev detect.Event) {
	d.consMu.RLock()
	targets := make([]registration, len(d.consumers))
	copy(targets, d.consumers)
	d.consMu.RUnlock()

	for _, target := range targets {
		errCh := make(chan error, 1)
		go func(c Consumer) {
			errCh <- c.Consume(ev)
		}(target.consumer)

		var err error
		select {
		case err = <-errCh:
		case <-time.After(d.config.ConsumerTimeout):
			err = fmt.Errorf("consumer timed out after %v", d.config.ConsumerTimeout)
		}

		d.statsMu.Lock()
		if err != nil {
			d.deliveryErrors++
		} else {
			d.delivered++
		}
		d.statsMu.Unlock()

		if err != nil {
			d.logger.Error("Consumer delivery failed",
				slog.String("consumer", target.name),
				slog.String("type", ev.Type),
				slog.String("error", err.Error()),
			)
		}
	}
}
