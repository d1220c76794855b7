// SPDX-License-Identifier: MIT

package sqa

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequirements(t *testing.T) {
	tooMany := make([]Requirement, MaxRequirements+1)
	for i := range tooMany {
		tooMany[i] = Requirement{Percentile: float64(i + 1), Perfect: time.Millisecond, Useless: time.Second}
	}

	tests := []struct {
		name    string
		points  []Requirement
		wantErr error
	}{
		{
			name: "valid",
			points: []Requirement{
				{Percentile: 50, Perfect: 10 * time.Millisecond, Useless: 100 * time.Millisecond},
				{Percentile: 99, Perfect: 20 * time.Millisecond, Useless: 200 * time.Millisecond},
			},
		},
		{
			name:    "empty",
			wantErr: ErrRequirementCount,
		},
		{
			name:    "too many",
			points:  tooMany,
			wantErr: ErrRequirementCount,
		},
		{
			name:    "percentile zero",
			points:  []Requirement{{Percentile: 0, Perfect: 0, Useless: time.Second}},
			wantErr: ErrPercentileRange,
		},
		{
			name:    "percentile above 100",
			points:  []Requirement{{Percentile: 100.5, Perfect: 0, Useless: time.Second}},
			wantErr: ErrPercentileRange,
		},
		{
			name: "unordered",
			points: []Requirement{
				{Percentile: 90, Perfect: 0, Useless: time.Second},
				{Percentile: 50, Perfect: 0, Useless: time.Second},
			},
			wantErr: ErrPercentileOrder,
		},
		{
			name: "duplicate",
			points: []Requirement{
				{Percentile: 90, Perfect: 0, Useless: time.Second},
				{Percentile: 90, Perfect: 0, Useless: time.Second},
			},
			wantErr: ErrPercentileOrder,
		},
		{
			name:    "useless equals perfect",
			points:  []Requirement{{Percentile: 50, Perfect: time.Second, Useless: time.Second}},
			wantErr: ErrInvertedRequirement,
		},
		{
			name:    "inverted",
			points:  []Requirement{{Percentile: 50, Perfect: time.Second, Useless: time.Millisecond}},
			wantErr: ErrInvertedRequirement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nr, err := NewRequirements("test", tt.points)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "test", nr.Type)
			assert.Equal(t, tt.points, nr.Points())
			assert.Equal(t, len(tt.points), nr.Len())
		})
	}
}

func TestRequirementsAreCopied(t *testing.T) {
	points := []Requirement{{Percentile: 50, Perfect: time.Millisecond, Useless: time.Second}}
	nr, err := NewRequirements("copy", points)
	require.NoError(t, err)

	points[0].Useless = 0
	assert.Equal(t, time.Second, nr.Points()[0].Useless)
}

func TestCurveLatencyAt(t *testing.T) {
	c := Curve{
		{Percentile: 90, Latency: 30 * time.Millisecond},
		{Percentile: 50, Latency: 10 * time.Millisecond},
	}

	lat, err := c.LatencyAt(50)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, lat)

	lat, err = c.LatencyAt(70)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, lat)

	lat, err = c.LatencyAt(90)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Millisecond, lat)

	_, err = c.LatencyAt(99)
	assert.ErrorIs(t, err, ErrCurveRange)

	_, err = Curve{}.LatencyAt(50)
	assert.ErrorIs(t, err, ErrCurveRange)
}

func TestAlignCurves(t *testing.T) {
	perfect := Curve{
		{Percentile: 50, Latency: 10 * time.Millisecond},
		{Percentile: 90, Latency: 30 * time.Millisecond},
	}
	useless := Curve{
		{Percentile: 50, Latency: 100 * time.Millisecond},
		{Percentile: 70, Latency: 200 * time.Millisecond},
		{Percentile: 90, Latency: 300 * time.Millisecond},
	}

	nr, err := AlignCurves("gaming", perfect, useless)
	require.NoError(t, err)

	want := []Requirement{
		{Percentile: 50, Perfect: 10 * time.Millisecond, Useless: 100 * time.Millisecond},
		{Percentile: 70, Perfect: 20 * time.Millisecond, Useless: 200 * time.Millisecond},
		{Percentile: 90, Perfect: 30 * time.Millisecond, Useless: 300 * time.Millisecond},
	}
	assert.Equal(t, want, nr.Points())
}

func TestAlignCurvesOutOfRange(t *testing.T) {
	perfect := Curve{{Percentile: 50, Latency: 10 * time.Millisecond}}
	useless := Curve{
		{Percentile: 50, Latency: 100 * time.Millisecond},
		{Percentile: 99, Latency: 300 * time.Millisecond},
	}

	_, err := AlignCurves("web", perfect, useless)
	assert.ErrorIs(t, err, ErrCurveRange)
}
