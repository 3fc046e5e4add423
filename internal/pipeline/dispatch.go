// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"sync"

	"github.com/mediadex/mediadex/internal/log"
	"github.com/mediadex/mediadex/internal/ui"
)

// Item is one classified file handed over by the scanner.
type Item struct {
	Type string
	File string
}

// Converter turns one source file into catalog state. Implementations update
// stats and emit events themselves; the dispatcher only accounts failures.
type Converter interface {
	Kind() string
	Convert(ctx context.Context, slot *Slot, file string) error
}

// Dispatcher drains the scan queue with one worker goroutine per slot. Each
// worker acquires a slot, runs the converter for the item's type, and
// releases the slot whatever the outcome.
type Dispatcher struct {
	pool       *SlotPool
	stats      *Stats
	ui         ui.SlotUI
	converters map[string]Converter

	queue chan Item
	wg    sync.WaitGroup
}

func NewDispatcher(pool *SlotPool, stats *Stats, slotUI ui.SlotUI, converters ...Converter) *Dispatcher {
	if slotUI == nil {
		slotUI = ui.Nop{}
	}
	d := &Dispatcher{
		pool:       pool,
		stats:      stats,
		ui:         slotUI,
		converters: make(map[string]Converter, len(converters)),
		queue:      make(chan Item, 4*pool.Size()),
	}
	for _, c := range converters {
		d.converters[c.Kind()] = c
	}
	return d
}

// Start launches the workers. They exit when the queue is closed or the
// context is canceled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.pool.Size(); i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Enqueue queues one item, dropping it if the context ends first.
func (d *Dispatcher) Enqueue(ctx context.Context, it Item) {
	select {
	case d.queue <- it:
	case <-ctx.Done():
	}
}

// Close closes the queue and waits for in-flight conversions to finish.
func (d *Dispatcher) Close() {
	close(d.queue)
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	logger := log.WithComponent("dispatch")
	for {
		var it Item
		var ok bool
		select {
		case it, ok = <-d.queue:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}

		conv, known := d.converters[it.Type]
		if !known {
			logger.Warn().Str("type", it.Type).Str("file", it.File).Msg("no converter for type")
			d.ui.Advance()
			continue
		}

		slot := d.pool.Acquire()
		if slot == nil {
			// one worker per slot, cannot happen
			logger.Error().Str("file", it.File).Msg("no free slot")
			continue
		}
		d.ui.StartSpinner(slot.Index, it.File)

		err := conv.Convert(ctx, slot, it.File)
		if err != nil && ctx.Err() == nil {
			d.stats.AddFailed(conv.Kind())
			logger.Error().Err(err).Str("type", it.Type).Str("file", it.File).Msg("conversion failed")
		}

		d.ui.StopSpinner(slot.Index)
		d.pool.Release(slot)
		d.ui.Advance()
	}
}
