// SPDX-License-Identifier: MIT

package main

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/czerwonk/qoo_exporter/sqa"
	"github.com/czerwonk/qoo_exporter/store"
	log "github.com/sirupsen/logrus"
)

// optional is a value which may not have been computed.
type optional struct {
	value float64
	ok    bool
}

// opt treats NaN as missing.
func opt(v float64, ok bool) optional {
	return optional{value: v, ok: ok && !math.IsNaN(v)}
}

func (o optional) ptr() *float64 {
	if !o.ok {
		return nil
	}
	v := o.value
	return &v
}

type percentileValue struct {
	percentile float64
	seconds    float64
}

type requirementScore struct {
	requirement string
	score       float64
	parts       []sqa.PartialScore
}

// summary is the exported result of one interval of one address. Latencies
// are in seconds.
type summary struct {
	probeInfo
	time        time.Time
	samples     int
	lost        int
	lossPercent optional
	best        optional
	worst       optional
	mean        optional
	median      optional
	stdDev      optional
	trimmedMean optional
	rpm         optional
	percentiles []percentileValue
	scores      []requirementScore
}

// requirementSet holds the requirement lists in use. It is swapped on config
// reload.
type requirementSet struct {
	v atomic.Pointer[[]sqa.Requirements]
}

func (rs *requirementSet) Load() []sqa.Requirements {
	p := rs.v.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (rs *requirementSet) Store(reqs []sqa.Requirements) {
	rs.v.Store(&reqs)
}

type summaryOptions struct {
	percentiles  []float64
	trimLower    float64
	trimUpper    float64
	requirements *requirementSet
}

func summarize(info probeInfo, s *sqa.Stats, opts summaryOptions, now time.Time) *summary {
	sum := &summary{
		probeInfo: info,
		time:      now,
		samples:   s.Samples(),
		lost:      s.Lost(),
	}

	sum.lossPercent = opt(s.LossPercentage())
	sum.best = opt(s.MinSeconds())
	sum.worst = opt(s.MaxSeconds())
	sum.mean = opt(s.Mean())
	sum.median = opt(s.Median())
	sum.stdDev = opt(s.StdDev())
	sum.rpm = opt(sqa.RPM(s))
	if opts.trimUpper > opts.trimLower {
		sum.trimmedMean = opt(s.TrimmedMean(opts.trimLower, opts.trimUpper))
	}

	for _, p := range opts.percentiles {
		if v, ok := s.Percentile(p); ok && !math.IsNaN(v) {
			sum.percentiles = append(sum.percentiles, percentileValue{percentile: p, seconds: v})
		}
	}

	if opts.requirements == nil {
		return sum
	}
	for _, nr := range opts.requirements.Load() {
		parts, err := sqa.PartialScores(s, nr)
		if err != nil {
			log.Debugf("no %s score for %s (%s): %v", nr.Type, info.host, info.addr.IP, err)
			continue
		}
		sum.scores = append(sum.scores, requirementScore{requirement: nr.Type, score: sqa.QoOFromParts(parts), parts: parts})
	}

	return sum
}

func (s *summary) record() store.Summary {
	rec := store.Summary{
		Target:  s.host,
		IP:      s.addr.IP.String(),
		Time:    s.time,
		Samples: s.samples,
		Lost:    s.lost,
		Min:     s.best.ptr(),
		Max:     s.worst.ptr(),
		Mean:    s.mean.ptr(),
		StdDev:  s.stdDev.ptr(),
		Median:  s.median.ptr(),
		RPM:     s.rpm.ptr(),
	}

	if len(s.scores) > 0 {
		rec.Scores = make(map[string]float64, len(s.scores))
		for _, sc := range s.scores {
			rec.Scores[sc.requirement] = sc.score
		}
	}

	return rec
}
