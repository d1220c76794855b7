// SPDX-License-Identifier: MIT

package sqa

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// MaxRequirements is the largest number of percentiles a requirement list
// may hold.
const MaxRequirements = 32

var (
	// ErrRequirementCount is returned for an empty list or one longer than
	// MaxRequirements.
	ErrRequirementCount = errors.New("requirement list must hold between 1 and 32 percentiles")
	// ErrPercentileRange is returned for a percentile outside (0, 100].
	ErrPercentileRange = errors.New("percentile must be within (0, 100]")
	// ErrPercentileOrder is returned when percentiles are not strictly
	// increasing.
	ErrPercentileOrder = errors.New("percentiles must be strictly increasing")
	// ErrInvertedRequirement is returned when a useless latency is not above
	// the perfect latency of the same point.
	ErrInvertedRequirement = errors.New("useless latency must be greater than perfect latency")
	// ErrCurveRange is returned when a curve cannot be interpolated at a
	// percentile.
	ErrCurveRange = errors.New("percentile outside of curve range")
)

// Requirement is one point of a network requirement: at Percentile, a
// latency at or below Perfect is flawless and one at or above Useless is
// worthless.
type Requirement struct {
	Percentile float64
	Perfect    time.Duration
	Useless    time.Duration
}

// Requirements describes what a kind of traffic expects from the network.
// See draft-olden-ippm-qoo for the background.
type Requirements struct {
	Type   string
	points []Requirement
}

// NewRequirements validates points and returns the requirement list.
func NewRequirements(typ string, points []Requirement) (Requirements, error) {
	if len(points) == 0 || len(points) > MaxRequirements {
		return Requirements{}, fmt.Errorf("%s: got %d: %w", typ, len(points), ErrRequirementCount)
	}

	for i, p := range points {
		if p.Percentile <= 0 || p.Percentile > maxPercentile {
			return Requirements{}, fmt.Errorf("%s: point %d (p%g): %w", typ, i, p.Percentile, ErrPercentileRange)
		}
		if i > 0 && p.Percentile <= points[i-1].Percentile {
			return Requirements{}, fmt.Errorf("%s: point %d (p%g): %w", typ, i, p.Percentile, ErrPercentileOrder)
		}
		if p.Perfect < 0 || p.Useless <= p.Perfect {
			return Requirements{}, fmt.Errorf("%s: point %d (p%g, perfect=%s, useless=%s): %w",
				typ, i, p.Percentile, p.Perfect, p.Useless, ErrInvertedRequirement)
		}
	}

	return Requirements{
		Type:   typ,
		points: append([]Requirement(nil), points...),
	}, nil
}

// Points returns a copy of the requirement points in percentile order.
func (r Requirements) Points() []Requirement {
	return append([]Requirement(nil), r.points...)
}

// Len returns the number of requirement points.
func (r Requirements) Len() int {
	return len(r.points)
}

// CurvePoint is a single (percentile, latency) pair of a latency curve.
type CurvePoint struct {
	Percentile float64
	Latency    time.Duration
}

// Curve is a latency curve sampled at arbitrary percentiles.
type Curve []CurvePoint

// LatencyAt returns the curve latency at percentile p, interpolating linearly
// between the enclosing points.
func (c Curve) LatencyAt(p float64) (time.Duration, error) {
	if len(c) == 0 {
		return 0, ErrCurveRange
	}

	sorted := append(Curve(nil), c...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Percentile < sorted[j].Percentile })

	if p < sorted[0].Percentile || p > sorted[len(sorted)-1].Percentile {
		return 0, fmt.Errorf("p%g not in [p%g, p%g]: %w",
			p, sorted[0].Percentile, sorted[len(sorted)-1].Percentile, ErrCurveRange)
	}

	for i, pt := range sorted {
		if pt.Percentile == p {
			return pt.Latency, nil
		}
		if pt.Percentile > p {
			prev := sorted[i-1]
			lat := interpolate(p, prev.Percentile, float64(prev.Latency), pt.Percentile, float64(pt.Latency))
			return time.Duration(lat), nil
		}
	}

	return sorted[len(sorted)-1].Latency, nil
}

func interpolate(p, p1, lat1, p3, lat3 float64) float64 {
	return (p-p1)*(lat3-lat1)/(p3-p1) + lat1
}

// AlignCurves builds requirements from a perfect and a useless curve sampled
// at different percentiles. The result holds the union of both percentile
// sets; missing latencies are interpolated.
func AlignCurves(typ string, perfect, useless Curve) (Requirements, error) {
	set := make(map[float64]struct{})
	for _, c := range []Curve{perfect, useless} {
		for _, pt := range c {
			set[pt.Percentile] = struct{}{}
		}
	}

	percentiles := make([]float64, 0, len(set))
	for p := range set {
		percentiles = append(percentiles, p)
	}
	sort.Float64s(percentiles)

	points := make([]Requirement, 0, len(percentiles))
	for _, p := range percentiles {
		perf, err := perfect.LatencyAt(p)
		if err != nil {
			return Requirements{}, fmt.Errorf("%s: perfect curve: %w", typ, err)
		}
		usel, err := useless.LatencyAt(p)
		if err != nil {
			return Requirements{}, fmt.Errorf("%s: useless curve: %w", typ, err)
		}
		points = append(points, Requirement{Percentile: p, Perfect: perf, Useless: usel})
	}

	return NewRequirements(typ, points)
}
