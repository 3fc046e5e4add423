// SPDX-License-Identifier: MIT

package pipeline

import "sync/atomic"

// Stats carries the monotonic run counters. Increments are atomic; pipelines
// update them concurrently.
type Stats struct {
	Images     atomic.Int64
	Texts      atomic.Int64
	Videos     atomic.Int64
	Converted  atomic.Int64
	Duplicates atomic.Int64
	Skipped    atomic.Int64
	Failed     atomic.Int64
}

// Snapshot is a point-in-time copy for reporting.
type Snapshot struct {
	Images     int64
	Texts      int64
	Videos     int64
	Converted  int64
	Duplicates int64
	Skipped    int64
	Failed     int64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Images:     s.Images.Load(),
		Texts:      s.Texts.Load(),
		Videos:     s.Videos.Load(),
		Converted:  s.Converted.Load(),
		Duplicates: s.Duplicates.Load(),
		Skipped:    s.Skipped.Load(),
		Failed:     s.Failed.Load(),
	}
}

// AddConverted records one completed conversion of the given kind.
func (s *Stats) AddConverted(kind string) {
	switch kind {
	case "image":
		s.Images.Add(1)
	case "text":
		s.Texts.Add(1)
	case "video":
		s.Videos.Add(1)
	}
	s.Converted.Add(1)
	indexedTotal.WithLabelValues(kind).Inc()
}

func (s *Stats) AddDuplicate(kind string) {
	s.Duplicates.Add(1)
	duplicateTotal.WithLabelValues(kind).Inc()
}

func (s *Stats) AddSkipped(kind string) {
	s.Skipped.Add(1)
	skippedTotal.WithLabelValues(kind).Inc()
}

func (s *Stats) AddFailed(kind string) {
	s.Failed.Add(1)
	failedTotal.WithLabelValues(kind).Inc()
}
