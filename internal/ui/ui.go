// SPDX-License-Identifier: MIT

// Package ui is the side-effect sink the pipelines report progress to. The
// core only talks to the SlotUI interface; tests use Nop.
package ui

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/mediadex/mediadex/internal/log"
)

// SlotUI renders per-slot activity and overall progress.
type SlotUI interface {
	// StartSpinner begins animating the given slot with a scrolling name.
	StartSpinner(slot int, name string)
	// UpdateProgress reports conversion progress for the slot. total may be
	// zero while it is still unknown.
	UpdateProgress(slot int, value, total float64)
	// StopSpinner ends the slot animation.
	StopSpinner(slot int)
	// Advance moves the run-wide progress counter by one completed file.
	Advance()
}

// Nop discards all UI updates.
type Nop struct{}

func (Nop) StartSpinner(slot int, name string)            {}
func (Nop) UpdateProgress(slot int, value, total float64) {}
func (Nop) StopSpinner(slot int)                          {}
func (Nop) Advance()                                      {}

// consoleNameWidth is the display window long names scroll through.
const consoleNameWidth = 24

// Console logs slot activity through the structured logger; suitable for
// non-interactive runs and CI. Long names scroll one rune per progress line.
type Console struct {
	mu        sync.Mutex
	logger    zerolog.Logger
	names     map[int]string
	scrollers map[int]*Scroller
	lastPct   map[int]int
	done      int64
}

func NewConsole() *Console {
	return &Console{
		logger:    log.WithComponent("ui"),
		names:     make(map[int]string),
		scrollers: make(map[int]*Scroller),
		lastPct:   make(map[int]int),
	}
}

func (c *Console) StartSpinner(slot int, name string) {
	c.mu.Lock()
	c.names[slot] = name
	c.scrollers[slot] = NewScroller(name, consoleNameWidth)
	c.lastPct[slot] = -1
	c.mu.Unlock()
	c.logger.Info().Int("slot", slot).Str("name", name).Msg("converting")
}

func (c *Console) UpdateProgress(slot int, value, total float64) {
	if total <= 0 {
		return
	}
	pct := int(value / total * 100)
	if pct > 100 {
		pct = 100
	}
	c.mu.Lock()
	name := c.names[slot]
	if sc := c.scrollers[slot]; sc != nil {
		name = sc.Tick()
	}
	// log in 10% steps only
	step := pct / 10
	if step == c.lastPct[slot] {
		c.mu.Unlock()
		return
	}
	c.lastPct[slot] = step
	c.mu.Unlock()
	c.logger.Debug().Int("slot", slot).Str("name", name).Int("percent", step*10).Msg("progress")
}

func (c *Console) StopSpinner(slot int) {
	c.mu.Lock()
	name := c.names[slot]
	delete(c.names, slot)
	delete(c.scrollers, slot)
	delete(c.lastPct, slot)
	c.mu.Unlock()
	c.logger.Debug().Int("slot", slot).Str("name", name).Msg("slot released")
}

func (c *Console) Advance() {
	c.mu.Lock()
	c.done++
	done := c.done
	c.mu.Unlock()
	c.logger.Info().Int64("completed", done).Msg("file finished")
}
