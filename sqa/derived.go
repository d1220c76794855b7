// SPDX-License-Identifier: MIT

package sqa

import (
	"math"
	"time"
)

// The queries below report ok == false when no latency sample was recorded
// (every sample lost, or Stats closed).

// Min returns the smallest recorded delay.
func (s *Stats) Min() (time.Duration, bool) {
	if !s.hasData() {
		return 0, false
	}
	return s.min, true
}

// Max returns the largest recorded delay.
func (s *Stats) Max() (time.Duration, bool) {
	if !s.hasData() {
		return 0, false
	}
	return s.max, true
}

// MinSeconds returns Min converted the same way samples are.
func (s *Stats) MinSeconds() (float64, bool) {
	if !s.hasData() {
		return 0, false
	}
	return seconds(s.min), true
}

// MaxSeconds returns Max converted the same way samples are.
func (s *Stats) MaxSeconds() (float64, bool) {
	if !s.hasData() {
		return 0, false
	}
	return seconds(s.max), true
}

// Sum returns the sum of the latency samples in seconds. The offset is
// scaled by every sample, lost ones included.
func (s *Stats) Sum() (float64, bool) {
	if !s.hasData() {
		return 0, false
	}
	return s.shiftedSum + s.offset*float64(s.samples), true
}

// Mean returns the mean delay in seconds.
func (s *Stats) Mean() (float64, bool) {
	if !s.hasData() {
		return 0, false
	}
	return s.offset + s.shiftedSum/float64(s.latencySamples()), true
}

// Variance returns the population variance of the delays in seconds².
func (s *Stats) Variance() (float64, bool) {
	if !s.hasData() {
		return 0, false
	}

	n := float64(s.latencySamples())
	v := (s.shiftedSumOfSquares - s.shiftedSum*s.shiftedSum/n) / n
	if v < 0 {
		// rounding
		v = 0
	}
	return v, true
}

// StdDev returns the population standard deviation in seconds.
func (s *Stats) StdDev() (float64, bool) {
	v, ok := s.Variance()
	if !ok {
		return 0, false
	}
	return math.Sqrt(v), true
}

// Median returns the estimated median delay in seconds.
func (s *Stats) Median() (float64, bool) {
	if !s.hasData() {
		return 0, false
	}
	return s.sketch.Quantile(medianQuantile), true
}

// Percentile returns the estimated delay in seconds at percentile p (0-100).
func (s *Stats) Percentile(p float64) (float64, bool) {
	if !s.hasData() {
		return 0, false
	}
	return s.sketch.Quantile(p / maxPercentile), true
}

// TrimmedMean returns the mean delay in seconds of the samples between the
// lower and upper percentile cutoffs (0-100).
func (s *Stats) TrimmedMean(lower, upper float64) (float64, bool) {
	if !s.hasData() {
		return 0, false
	}
	return s.sketch.TrimmedMean(lower/maxPercentile, upper/maxPercentile), true
}

// LossPercentage returns the share of lost samples in percent. Unlike the
// latency queries it only needs a single sample of any kind.
func (s *Stats) LossPercentage() (float64, bool) {
	if s.samples == 0 {
		return 0, false
	}
	return maxPercentile * float64(s.lost) / float64(s.samples), true
}
