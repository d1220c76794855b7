// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr(f float64) *float64 {
	return &f
}

func TestSaveAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	first := Summary{
		Target:  "example.com",
		IP:      "192.0.2.1",
		Time:    now,
		Samples: 10,
		Lost:    1,
		Min:     ptr(0.01),
		Max:     ptr(0.05),
		Mean:    ptr(0.02),
		StdDev:  ptr(0.005),
		Median:  ptr(0.019),
		RPM:     ptr(3000),
		Scores:  map[string]float64{"voip": 87.5},
	}
	second := Summary{
		Target:  "example.com",
		IP:      "192.0.2.1",
		Time:    now.Add(time.Minute),
		Samples: 4,
		Lost:    4,
	}
	other := Summary{Target: "other.net", IP: "198.51.100.7", Time: now, Samples: 1}

	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))
	require.NoError(t, s.Save(ctx, other))

	got, err := s.Recent(ctx, "example.com", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// newest first
	assert.Equal(t, 4, got[0].Lost)
	assert.Nil(t, got[0].Mean)
	assert.Nil(t, got[0].Scores)
	assert.True(t, got[0].Time.Equal(now.Add(time.Minute)))

	assert.Equal(t, s.Run(), got[1].Run)
	assert.Equal(t, "192.0.2.1", got[1].IP)
	assert.Equal(t, 10, got[1].Samples)
	require.NotNil(t, got[1].Mean)
	assert.Equal(t, 0.02, *got[1].Mean)
	assert.Equal(t, 3000.0, *got[1].RPM)
	assert.Equal(t, map[string]float64{"voip": 87.5}, got[1].Scores)

	limited, err := s.Recent(ctx, "example.com", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecentNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Recent(context.Background(), "nothing.here", 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunIsUniquePerStore(t *testing.T) {
	a := openTestStore(t)
	b := openTestStore(t)

	assert.NotEmpty(t, a.Run())
	assert.NotEqual(t, a.Run(), b.Run())
}
