// SPDX-License-Identifier: MIT

package sqa

import (
	"fmt"
	"math"
	"sort"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/influxdata/tdigest"
	log "github.com/sirupsen/logrus"
)

// Sketch is a bounded-memory approximation of an empirical distribution.
// Quantile arguments are in [0,1].
type Sketch interface {
	Add(value, weight float64)
	Quantile(q float64) float64
	TrimmedMean(lowerQ, upperQ float64) float64
	Reset()
}

// DefaultCompression is the t-digest compression used by NewStats.
const DefaultCompression = 50.0

type tdigestSketch struct {
	*tdigest.TDigest
}

// NewTDigest returns a Sketch backed by a t-digest with the given compression.
func NewTDigest(compression float64) Sketch {
	if compression <= 0 {
		compression = DefaultCompression
	}
	return &tdigestSketch{TDigest: tdigest.NewWithCompression(compression)}
}

// TrimmedMean treats every centroid as a bin at its mean.
func (t *tdigestSketch) TrimmedMean(lowerQ, upperQ float64) float64 {
	centroids := t.TDigest.Centroids(nil)
	bins := make([]bin, 0, len(centroids))
	for _, c := range centroids {
		bins = append(bins, bin{value: c.Mean, count: c.Weight})
	}
	return trimmedMean(bins, lowerQ, upperQ)
}

type ddSketch struct {
	*ddsketch.DDSketch
}

// NewDDSketch returns a Sketch backed by a DDSketch with the given relative
// accuracy. DDSketch only tracks positive magnitudes at the configured
// accuracy; zero delays land in its zero bucket.
func NewDDSketch(relativeAccuracy float64) (Sketch, error) {
	s, err := ddsketch.NewDefaultDDSketch(relativeAccuracy)
	if err != nil {
		return nil, fmt.Errorf("could not create ddsketch: %w", err)
	}
	return &ddSketch{DDSketch: s}, nil
}

func (d *ddSketch) Add(value, weight float64) {
	// only fails for values outside the indexable range
	if err := d.DDSketch.AddWithCount(value, weight); err != nil {
		log.Debugf("ddsketch dropped value %g: %v", value, err)
	}
}

func (d *ddSketch) Quantile(q float64) float64 {
	v, err := d.DDSketch.GetValueAtQuantile(clampQuantile(q))
	if err != nil {
		return math.NaN()
	}
	return v
}

func (d *ddSketch) Reset() {
	d.DDSketch.Clear()
}

type bin struct {
	value, count float64
}

// TrimmedMean uses the sketch buckets as bins.
func (d *ddSketch) TrimmedMean(lowerQ, upperQ float64) float64 {
	var bins []bin
	d.DDSketch.ForEach(func(value, count float64) bool {
		bins = append(bins, bin{value: value, count: count})
		return false
	})
	return trimmedMean(bins, lowerQ, upperQ)
}

// trimmedMean walks the bins in value order and averages the mass falling
// between the two quantiles, splitting boundary bins pro rata.
func trimmedMean(bins []bin, lowerQ, upperQ float64) float64 {
	lowerQ, upperQ = clampQuantile(lowerQ), clampQuantile(upperQ)
	if upperQ <= lowerQ {
		return math.NaN()
	}

	var total float64
	for _, b := range bins {
		total += b.count
	}
	if total == 0 {
		return math.NaN()
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].value < bins[j].value })

	lo, hi := lowerQ*total, upperQ*total
	var seen, sum, weight float64
	for _, b := range bins {
		start, end := seen, seen+b.count
		seen = end
		w := math.Min(end, hi) - math.Max(start, lo)
		if w <= 0 {
			continue
		}
		sum += b.value * w
		weight += w
	}
	if weight == 0 {
		return math.NaN()
	}
	return sum / weight
}

func clampQuantile(q float64) float64 {
	return math.Max(0, math.Min(1, q))
}
