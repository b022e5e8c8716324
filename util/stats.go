package util

import (
	"io"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histograms track microseconds, from 1us to one minute.
const (
	minTrackable = 1
	maxTrackable = int64(60 * time.Second / time.Microsecond)
	sigFigs      = 3
)

// Snapshot summarizes one of the histograms of a RuntimeStats. Durations are
// in microsecond precision.
type Snapshot struct {
	Count int64
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P99   time.Duration
}

// RuntimeStats records how long executor passes take and how long threads
// stay parked in BlockOn. It is safe for concurrent use.
type RuntimeStats struct {
	mu    sync.Mutex
	runs  *hdrhistogram.Histogram
	parks *hdrhistogram.Histogram
}

func NewRuntimeStats() *RuntimeStats {
	return &RuntimeStats{
		runs:  hdrhistogram.New(minTrackable, maxTrackable, sigFigs),
		parks: hdrhistogram.New(minTrackable, maxTrackable, sigFigs),
	}
}

func (s *RuntimeStats) RecordRun(d time.Duration) {
	s.record(s.runs, d)
}

func (s *RuntimeStats) RecordPark(d time.Duration) {
	s.record(s.parks, d)
}

func (s *RuntimeStats) record(h *hdrhistogram.Histogram, d time.Duration) {
	us := d.Microseconds()
	if us < minTrackable {
		us = minTrackable
	}
	if us > maxTrackable {
		us = maxTrackable
	}

	s.mu.Lock()
	_ = h.RecordValue(us)
	s.mu.Unlock()
}

func (s *RuntimeStats) Runs() Snapshot {
	return s.snapshot(s.runs)
}

func (s *RuntimeStats) Parks() Snapshot {
	return s.snapshot(s.parks)
}

func (s *RuntimeStats) snapshot(h *hdrhistogram.Histogram) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	us := func(v int64) time.Duration {
		return time.Duration(v) * time.Microsecond
	}
	return Snapshot{
		Count: h.TotalCount(),
		Min:   us(h.Min()),
		Max:   us(h.Max()),
		Mean:  time.Duration(h.Mean() * float64(time.Microsecond)),
		P50:   us(h.ValueAtPercentile(50.0)),
		P99:   us(h.ValueAtPercentile(99.0)),
	}
}

func (s *RuntimeStats) Reset() {
	s.mu.Lock()
	s.runs.Reset()
	s.parks.Reset()
	s.mu.Unlock()
}

// Report writes both histograms to w, hiding bins holding less than minPct
// percent of the samples.
func (s *RuntimeStats) Report(w io.Writer, minPct float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	WriteHistogram(w, "executor_run", "us", minPct, s.runs)
	WriteHistogram(w, "thread_park", "us", minPct, s.parks)
}
