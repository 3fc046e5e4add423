// SPDX-License-Identifier: MIT

package pipeline

import (
	"sync"

	"github.com/mediadex/mediadex/internal/catalog"
)

// Slot is one unit of display and dedup state. A worker holds exactly one
// slot while converting a file; the slot advertises which fingerprint is in
// flight so concurrent duplicates can fold into it instead of converting
// again.
type Slot struct {
	Index int

	id          string
	occurrences []catalog.Occurrence

	busy bool

	// last reported progress, observable while a conversion runs
	progressValue float64
	progressTotal float64
}

// SlotPool manages a fixed set of slots under a single mutex. Acquisition is
// linear first-fit, so slot indexes are stable and dense for display.
type SlotPool struct {
	mu    sync.Mutex
	slots []*Slot
}

func NewSlotPool(n int) *SlotPool {
	if n < 1 {
		n = 1
	}
	p := &SlotPool{slots: make([]*Slot, n)}
	for i := range p.slots {
		p.slots[i] = &Slot{Index: i}
	}
	return p
}

func (p *SlotPool) Size() int { return len(p.slots) }

// Acquire returns the first free slot, or nil when all slots are busy. With
// one worker per slot it never returns nil in practice.
func (p *SlotPool) Acquire() *Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.slots {
		if !s.busy {
			s.busy = true
			s.id = ""
			s.occurrences = nil
			s.progressValue = 0
			s.progressTotal = 0
			return s
		}
	}
	return nil
}

// Release returns the slot to the pool and clears its claim.
func (p *SlotPool) Release(s *Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.busy = false
	s.id = ""
	s.occurrences = nil
	s.progressValue = 0
	s.progressTotal = 0
}

// ClaimOrAppend is the in-flight dedup point. If no busy slot currently
// claims id, the calling slot claims it with occ as its primary occurrence
// and ClaimOrAppend returns true. Otherwise occ is appended to the owning
// slot's occurrence list and ClaimOrAppend returns false; the caller must
// abandon the file. Check and claim happen under one lock so two workers can
// never both own the same fingerprint.
func (p *SlotPool) ClaimOrAppend(s *Slot, id string, occ catalog.Occurrence) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, other := range p.slots {
		if other != s && other.busy && other.id == id {
			other.occurrences = append(other.occurrences, occ)
			return false
		}
	}
	s.id = id
	s.occurrences = []catalog.Occurrence{occ}
	return true
}

// TakeOccurrences removes and returns every occurrence accumulated on the
// slot, the claimed one first. The claim itself stays in place, so concurrent
// duplicates arriving after the drain still fold into the slot; Unclaim
// collects them once the record is persisted.
func (p *SlotPool) TakeOccurrences(s *Slot) []catalog.Occurrence {
	p.mu.Lock()
	defer p.mu.Unlock()
	occs := s.occurrences
	s.occurrences = nil
	return occs
}

// Unclaim drops the slot's fingerprint claim and returns any occurrences that
// folded in after TakeOccurrences. From this point a new claim on the same id
// succeeds and resolves against the catalog instead.
func (p *SlotPool) Unclaim(s *Slot) []catalog.Occurrence {
	p.mu.Lock()
	defer p.mu.Unlock()
	occs := s.occurrences
	s.id = ""
	s.occurrences = nil
	return occs
}

// SetProgress records the current progress pair for the slot.
func (p *SlotPool) SetProgress(s *Slot, value, total float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.progressValue = value
	s.progressTotal = total
}

// Progress returns the last reported progress pair for the slot.
func (p *SlotPool) Progress(s *Slot) (value, total float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return s.progressValue, s.progressTotal
}
