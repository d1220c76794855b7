// SPDX-License-Identifier: MIT

// Package store persists interval summaries in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when no summary matches a query.
var ErrNotFound = errors.New("no summaries found")

// Summary is the persisted form of one measurement interval of one address.
// Latencies are in seconds; nil means the interval had no latency samples.
type Summary struct {
	Run     string             `json:"run"`
	Target  string             `json:"target"`
	IP      string             `json:"ip"`
	Time    time.Time          `json:"time"`
	Samples int                `json:"samples"`
	Lost    int                `json:"lost"`
	Min     *float64           `json:"min,omitempty"`
	Max     *float64           `json:"max,omitempty"`
	Mean    *float64           `json:"mean,omitempty"`
	StdDev  *float64           `json:"std_dev,omitempty"`
	Median  *float64           `json:"median,omitempty"`
	RPM     *float64           `json:"rpm,omitempty"`
	Scores  map[string]float64 `json:"scores,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS summaries (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	run     TEXT NOT NULL,
	target  TEXT NOT NULL,
	ip      TEXT NOT NULL,
	ts      INTEGER NOT NULL,
	samples INTEGER NOT NULL,
	lost    INTEGER NOT NULL,
	min     REAL,
	max     REAL,
	mean    REAL,
	std_dev REAL,
	median  REAL,
	rpm     REAL,
	scores  TEXT
);
CREATE INDEX IF NOT EXISTS summaries_target_ts ON summaries (target, ts);
`

// Store writes summaries of the current process run.
type Store struct {
	db  *sql.DB
	run string
}

// Open opens (and if needed creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("could not open store: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create schema: %w", err)
	}

	return &Store{db: db, run: uuid.New().String()}, nil
}

// Run returns the id tagging every summary written by this store.
func (s *Store) Run() string {
	return s.run
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists sum under the store's run id.
func (s *Store) Save(ctx context.Context, sum Summary) error {
	var scores sql.NullString
	if len(sum.Scores) > 0 {
		b, err := json.Marshal(sum.Scores)
		if err != nil {
			return err
		}
		scores = sql.NullString{String: string(b), Valid: true}
	}

	const q = `
INSERT INTO summaries (run, target, ip, ts, samples, lost, min, max, mean, std_dev, median, rpm, scores)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q, s.run, sum.Target, sum.IP, sum.Time.UnixNano(),
		sum.Samples, sum.Lost, sum.Min, sum.Max, sum.Mean, sum.StdDev, sum.Median, sum.RPM, scores)
	if err != nil {
		return fmt.Errorf("could not save summary for %s: %w", sum.Target, err)
	}
	return nil
}

// Recent returns up to limit summaries of target, newest first.
func (s *Store) Recent(ctx context.Context, target string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 100
	}

	const q = `
SELECT run, target, ip, ts, samples, lost, min, max, mean, std_dev, median, rpm, scores
FROM summaries
WHERE target = ?
ORDER BY ts DESC, id DESC
LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, target, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Summary
	for rows.Next() {
		var sum Summary
		var ts int64
		var min, max, mean, stddev, median, rpm sql.NullFloat64
		var scores sql.NullString

		err := rows.Scan(&sum.Run, &sum.Target, &sum.IP, &ts, &sum.Samples, &sum.Lost,
			&min, &max, &mean, &stddev, &median, &rpm, &scores)
		if err != nil {
			return nil, err
		}

		sum.Time = time.Unix(0, ts)
		sum.Min = nullable(min)
		sum.Max = nullable(max)
		sum.Mean = nullable(mean)
		sum.StdDev = nullable(stddev)
		sum.Median = nullable(median)
		sum.RPM = nullable(rpm)
		if scores.Valid {
			if err := json.Unmarshal([]byte(scores.String), &sum.Scores); err != nil {
				return nil, fmt.Errorf("corrupt scores in store: %w", err)
			}
		}

		res = append(res, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, ErrNotFound
	}
	return res, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
