// SPDX-License-Identifier: MIT

package sqa

import (
	"errors"
	"math"
)

const (
	maxQoO        = 100.0
	secondsPerMin = 60.0
)

// ErrNoData is returned when a score needs latency samples and there are none.
var ErrNoData = errors.New("no latency samples")

// PartialScore is the score of a single requirement point.
type PartialScore struct {
	Percentile float64
	Measured   float64 // latency at Percentile in seconds
	Score      float64
}

// PartialScores scores every requirement point against the measured
// distribution.
func PartialScores(s *Stats, nr Requirements) ([]PartialScore, error) {
	if !s.hasData() {
		return nil, ErrNoData
	}

	res := make([]PartialScore, 0, nr.Len())
	for _, r := range nr.points {
		measured, _ := s.Percentile(r.Percentile)
		perfect := r.Perfect.Seconds()
		useless := r.Useless.Seconds()

		score := (1 - (measured-perfect)/(useless-perfect)) * maxQoO
		score = math.Max(0, math.Min(maxQoO, score))

		res = append(res, PartialScore{
			Percentile: r.Percentile,
			Measured:   measured,
			Score:      score,
		})
	}

	return res, nil
}

// QoO returns the quality of outcome score (0-100). The worst requirement
// point determines the score.
func QoO(s *Stats, nr Requirements) (float64, error) {
	parts, err := PartialScores(s, nr)
	if err != nil {
		return 0, err
	}

	return QoOFromParts(parts), nil
}

// QoOFromParts returns the lowest of the partial scores, or 100 if there are
// none.
func QoOFromParts(parts []PartialScore) float64 {
	qoo := maxQoO
	for _, p := range parts {
		if p.Score < qoo {
			qoo = p.Score
		}
	}
	return qoo
}

// RPM returns a simplified responsiveness metric: round trips per minute at
// the mean delay. The full metric needs TCP, TLS and HTTP latencies of
// foreign flows under load (draft-ietf-ippm-responsiveness).
func RPM(s *Stats) (float64, bool) {
	mean, ok := s.Mean()
	if !ok || mean <= 0 {
		return 0, false
	}
	return secondsPerMin / mean, true
}
