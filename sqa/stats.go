// SPDX-License-Identifier: MIT

// Package sqa implements simple quality attenuation statistics: streaming
// latency aggregates, loss classification, a QoO score against network
// requirements and a simplified RPM.
//
// A Stats value is not safe for concurrent use. Callers that read while
// another goroutine ingests must serialize access themselves.
package sqa

import (
	"errors"
	"math"
	"time"
)

const (
	// DefaultOffset is subtracted from every sample (in seconds) before it is
	// accumulated. Anything in the expected range of the samples will do.
	DefaultOffset = 0.1

	// DefaultLossThreshold is the delay above which a sample counts as lost.
	DefaultLossThreshold = 15 * time.Second

	medianQuantile = 0.5
	maxPercentile  = 100.0
)

var (
	// ErrClosed is returned when closing Stats twice.
	ErrClosed = errors.New("stats already closed")

	// ErrInvalidOption is returned by NewStats for unusable options.
	ErrInvalidOption = errors.New("invalid stats option")
)

// Stats accumulates delay samples of a single flow or interval.
type Stats struct {
	samples int
	lost    int

	// exact values
	min           time.Duration
	max           time.Duration
	lossThreshold time.Duration

	// approximations
	offset              float64
	shiftedSum          float64
	shiftedSumOfSquares float64
	sketch              Sketch

	closed bool
}

// Option configures Stats.
type Option func(*Stats)

// WithLossThreshold sets the delay above which samples count as lost.
func WithLossThreshold(d time.Duration) Option {
	return func(s *Stats) {
		s.lossThreshold = d
	}
}

// WithOffset sets the shift (in seconds) applied to accumulated sums.
func WithOffset(seconds float64) Option {
	return func(s *Stats) {
		s.offset = seconds
	}
}

// WithSketch replaces the default t-digest. Stats takes ownership of sk.
func WithSketch(sk Sketch) Option {
	return func(s *Stats) {
		s.sketch = sk
	}
}

// NewStats creates an empty accumulator.
func NewStats(opts ...Option) (*Stats, error) {
	s := &Stats{
		lossThreshold: DefaultLossThreshold,
		offset:        DefaultOffset,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.lossThreshold <= 0 {
		return nil, ErrInvalidOption
	}
	if math.IsNaN(s.offset) || math.IsInf(s.offset, 0) {
		return nil, ErrInvalidOption
	}
	if s.sketch == nil {
		s.sketch = NewTDigest(DefaultCompression)
	}

	return s, nil
}

// AddSample records one observed delay. Delays above the loss threshold are
// counted as lost and contribute nothing else.
func (s *Stats) AddSample(delay time.Duration) {
	if s.closed {
		return
	}

	s.samples++
	if delay > s.lossThreshold {
		s.lost++
		return
	}
	if delay < 0 {
		delay = 0
	}

	if s.samples-s.lost == 1 {
		s.min = delay
		s.max = delay
	} else {
		if delay < s.min {
			s.min = delay
		}
		if delay > s.max {
			s.max = delay
		}
	}

	v := seconds(delay)
	shifted := v - s.offset
	s.shiftedSum += shifted
	s.shiftedSumOfSquares += shifted * shifted
	s.sketch.Add(v, 1)
}

// AddSampleNanos is AddSample for a delay given in nanoseconds.
func (s *Stats) AddSampleNanos(ns int64) {
	s.AddSample(time.Duration(ns))
}

// CountLoss records a sample known to be lost.
func (s *Stats) CountLoss() {
	if s.closed {
		return
	}

	s.samples++
	s.lost++
}

// Close releases the sketch. Stats must not be fed afterwards; ingest calls
// are ignored and every query reports no data.
func (s *Stats) Close() error {
	if s.closed {
		return ErrClosed
	}

	s.closed = true
	s.sketch.Reset()
	s.sketch = nil
	return nil
}

// Samples returns the number of samples recorded, lost ones included.
func (s *Stats) Samples() int {
	return s.samples
}

// Lost returns the number of lost samples.
func (s *Stats) Lost() int {
	return s.lost
}

// LossThreshold returns the delay above which samples count as lost.
func (s *Stats) LossThreshold() time.Duration {
	return s.lossThreshold
}

// Offset returns the shift applied to accumulated sums, in seconds.
func (s *Stats) Offset() float64 {
	return s.offset
}

func (s *Stats) latencySamples() int {
	return s.samples - s.lost
}

func (s *Stats) hasData() bool {
	return !s.closed && s.latencySamples() > 0
}

// seconds truncates to whole microseconds before converting.
func seconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1e6
}
