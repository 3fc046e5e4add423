// SPDX-License-Identifier: MIT

package ui

import "strings"

// Scroller renders a fixed-width window over a long name, advancing one rune
// per tick. Short names are padded and never move.
type Scroller struct {
	runes []rune
	width int
	pos   int
}

const scrollGap = "   "

// NewScroller creates a scroller rendering name into width columns.
func NewScroller(name string, width int) *Scroller {
	if width <= 0 {
		width = 24
	}
	s := &Scroller{width: width}
	if len([]rune(name)) > width {
		// loop the name with a gap so the wrap-around reads naturally
		s.runes = []rune(name + scrollGap)
	} else {
		s.runes = []rune(name)
	}
	return s
}

// Tick returns the current window and advances the scroll position.
func (s *Scroller) Tick() string {
	if len(s.runes) <= s.width {
		return string(s.runes) + strings.Repeat(" ", s.width-len(s.runes))
	}
	out := make([]rune, s.width)
	for i := 0; i < s.width; i++ {
		out[i] = s.runes[(s.pos+i)%len(s.runes)]
	}
	s.pos = (s.pos + 1) % len(s.runes)
	return string(out)
}
