package analytics

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// BatcherConfig controls when buffered events are flushed.
type BatcherConfig struct {
	FlushInterval time.Duration
	MaxBatchSize  int
}

func (c *BatcherConfig) applyDefaults() {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 100
	}
}

// Batcher buffers events and hands them to onFlush when the batch is full,
// when the flush interval elapses after the first buffered event, or on Stop.
type Batcher struct {
	mu sync.Mutex

	flushInterval time.Duration
	maxBatchSize  int

	buffer     []Event
	flushTimer *time.Timer
	stopped    bool

	// sendMu keeps batches in order when the timer and a size flush race
	sendMu  sync.Mutex
	onFlush func([]Event) error
}

func NewBatcher(cfg BatcherConfig, onFlush func([]Event) error) *Batcher {
	cfg.applyDefaults()

	return &Batcher{
		flushInterval: cfg.FlushInterval,
		maxBatchSize:  cfg.MaxBatchSize,
		buffer:        make([]Event, 0, cfg.MaxBatchSize),
		onFlush:       onFlush,
	}
}

// Add buffers an event. Returns an error once the batcher is stopped.
func (b *Batcher) Add(event Event) error {
	b.mu.Lock()

	if b.stopped {
		b.mu.Unlock()
		return fmt.Errorf("analytics batcher is stopped")
	}

	if len(b.buffer) == 0 {
		b.startFlushTimer()
	}
	b.buffer = append(b.buffer, event)

	var batch []Event
	if len(b.buffer) >= b.maxBatchSize {
		batch = b.takeLocked()
	}
	b.mu.Unlock()

	if batch != nil {
		return b.send(batch, "max_batch_size")
	}
	return nil
}

// Flush sends buffered events immediately.
func (b *Batcher) Flush() error {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()

	return b.send(batch, "manual_flush")
}

// Stop flushes pending events. Later calls to Add fail.
func (b *Batcher) Stop() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	batch := b.takeLocked()
	b.mu.Unlock()

	return b.send(batch, "shutdown")
}

// takeLocked detaches the buffer. Must be called with mu held.
func (b *Batcher) takeLocked() []Event {
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	if len(b.buffer) == 0 {
		return nil
	}

	batch := b.buffer
	b.buffer = make([]Event, 0, b.maxBatchSize)
	return batch
}

func (b *Batcher) send(batch []Event, reason string) error {
	if len(batch) == 0 {
		return nil
	}

	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	log.Debug().Int("event_count", len(batch)).Str("reason", reason).Msg("Flushing analytics batch")
	return b.onFlush(batch)
}

// startFlushTimer must be called with mu held.
func (b *Batcher) startFlushTimer() {
	if b.flushTimer != nil {
		b.flushTimer.Stop()
	}

	b.flushTimer = time.AfterFunc(b.flushInterval, func() {
		b.mu.Lock()
		if b.stopped {
			b.mu.Unlock()
			return
		}
		batch := b.takeLocked()
		b.mu.Unlock()

		if err := b.send(batch, "timer"); err != nil {
			log.Error().Err(err).Msg("Failed to flush analytics batch on timer")
		}
	})
}
