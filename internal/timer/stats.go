// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package timer

import (
	"slices"
	"time"
)

// DefaultWindow is the number of most recent samples kept for the median.
const DefaultWindow = 4096

// Summary is a snapshot of timer statistics.
type Summary struct {
	Latest  time.Duration
	Min     time.Duration
	Max     time.Duration
	Average time.Duration
	Median  time.Duration
	Count   int
}

// Stats accumulates duration samples. Latest, Min, Max and Average cover
// every sample since the last Reset; Median covers the most recent window.
type Stats struct {
	capacity int

	// sorted holds the window ordered by value; ring holds it in arrival
	// order so the oldest sample can be evicted.
	sorted []time.Duration
	ring   []time.Duration
	head   int

	latest, min, max time.Duration
	sum              time.Duration
	count            int
}

// NewStats creates statistics with a median window of capacity samples.
func NewStats(capacity int) *Stats {
	if capacity <= 0 {
		capacity = DefaultWindow
	}
	return &Stats{
		capacity: capacity,
		sorted:   make([]time.Duration, 0, capacity),
		ring:     make([]time.Duration, 0, capacity),
	}
}

// Add records one sample.
func (s *Stats) Add(d time.Duration) {
	if s.count == 0 || d < s.min {
		s.min = d
	}
	if s.count == 0 || d > s.max {
		s.max = d
	}
	s.latest = d
	s.sum += d
	s.count++

	if len(s.ring) < s.capacity {
		s.ring = append(s.ring, d)
	} else {
		oldest := s.ring[s.head]
		s.ring[s.head] = d
		s.head = (s.head + 1) % s.capacity
		if i, found := slices.BinarySearch(s.sorted, oldest); found {
			s.sorted = slices.Delete(s.sorted, i, i+1)
		}
	}
	i, _ := slices.BinarySearch(s.sorted, d)
	s.sorted = slices.Insert(s.sorted, i, d)
}

// Summary returns the current statistics.
func (s *Stats) Summary() Summary {
	if s.count == 0 {
		return Summary{}
	}
	return Summary{
		Latest:  s.latest,
		Min:     s.min,
		Max:     s.max,
		Average: time.Duration(float64(s.sum) / float64(s.count)),
		Median:  s.median(),
		Count:   s.count,
	}
}

func (s *Stats) median() time.Duration {
	n := len(s.sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return s.sorted[n/2]
	}
	return (s.sorted[n/2-1] + s.sorted[n/2]) / 2
}

// Reset discards every sample.
func (s *Stats) Reset() {
	s.sorted = s.sorted[:0]
	s.ring = s.ring[:0]
	s.head = 0
	s.latest, s.min, s.max, s.sum = 0, 0, 0, 0
	s.count = 0
}
