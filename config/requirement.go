// SPDX-License-Identifier: MIT

package config

import (
	"fmt"

	"github.com/czerwonk/qoo_exporter/sqa"
)

// RequirementConfig describes the network requirements of one kind of
// traffic, either as explicit points or as two latency curves.
type RequirementConfig struct {
	Type    string        `yaml:"type"`
	Points  []PointConfig `yaml:"points,omitempty"`
	Perfect []CurveConfig `yaml:"perfect,omitempty"`
	Useless []CurveConfig `yaml:"useless,omitempty"`
}

// PointConfig is a single requirement point.
type PointConfig struct {
	Percentile float64  `yaml:"percentile"`
	Perfect    duration `yaml:"perfect"`
	Useless    duration `yaml:"useless"`
}

// CurveConfig is a single point of a latency curve.
type CurveConfig struct {
	Percentile float64  `yaml:"percentile"`
	Latency    duration `yaml:"latency"`
}

// Requirements validates the config and converts it.
func (rc RequirementConfig) Requirements() (sqa.Requirements, error) {
	hasCurves := len(rc.Perfect) > 0 || len(rc.Useless) > 0

	switch {
	case len(rc.Points) > 0 && hasCurves:
		return sqa.Requirements{}, fmt.Errorf("requirement %q: specify either points or curves, not both", rc.Type)
	case hasCurves:
		return sqa.AlignCurves(rc.Type, toCurve(rc.Perfect), toCurve(rc.Useless))
	case len(rc.Points) > 0:
		points := make([]sqa.Requirement, len(rc.Points))
		for i, p := range rc.Points {
			points[i] = sqa.Requirement{
				Percentile: p.Percentile,
				Perfect:    p.Perfect.Duration(),
				Useless:    p.Useless.Duration(),
			}
		}
		return sqa.NewRequirements(rc.Type, points)
	default:
		return sqa.Requirements{}, fmt.Errorf("requirement %q has neither points nor curves", rc.Type)
	}
}

func toCurve(cc []CurveConfig) sqa.Curve {
	c := make(sqa.Curve, len(cc))
	for i, p := range cc {
		c[i] = sqa.CurvePoint{Percentile: p.Percentile, Latency: p.Latency.Duration()}
	}
	return c
}
