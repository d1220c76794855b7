// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"io"
	"time"

	"github.com/czerwonk/qoo_exporter/sqa"
	yaml "gopkg.in/yaml.v2"
)

// Config represents configuration for the exporter
type Config struct {
	Targets []TargetConfig `yaml:"targets"`

	Ping struct {
		Interval          duration `yaml:"interval"`
		Timeout           duration `yaml:"timeout"`
		Size              uint16   `yaml:"payload-size"`
		IDChangeInterval  duration `yaml:"id-change-interval"`
		IDChangeThreshold float64  `yaml:"id-change-threshold"`
	} `yaml:"ping"`

	DNS struct {
		Refresh    duration `yaml:"refresh"`
		Nameserver string   `yaml:"nameserver"`
		Retries    int      `yaml:"retries"`
	} `yaml:"dns"`

	QoO struct {
		LossThreshold    duration  `yaml:"loss-threshold"`
		Offset           float64   `yaml:"offset"`
		Sketch           string    `yaml:"sketch"`
		Compression      float64   `yaml:"compression"`
		RelativeAccuracy float64   `yaml:"relative-accuracy"`
		Percentiles      []float64 `yaml:"percentiles"`
		TrimLower        float64   `yaml:"trim-lower"`
		TrimUpper        float64   `yaml:"trim-upper"`
	} `yaml:"qoo"`

	Requirements []RequirementConfig `yaml:"requirements"`

	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
}

type duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler interface.
func (d *duration) UnmarshalYAML(unmashal func(interface{}) error) error {
	var s string
	if err := unmashal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler interface.
func (d duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration is a convenience getter.
func (d duration) Duration() time.Duration {
	return time.Duration(d)
}

// Set updates the underlying duration.
func (d *duration) Set(dur time.Duration) {
	*d = duration(dur)
}

// FromYAML reads YAML from reader and unmarshals it to Config
func FromYAML(r io.Reader) (*Config, error) {
	c := &Config{}
	err := yaml.NewDecoder(r).Decode(c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NetworkRequirements converts all configured requirement sets.
func (c *Config) NetworkRequirements() ([]sqa.Requirements, error) {
	seen := make(map[string]struct{}, len(c.Requirements))
	res := make([]sqa.Requirements, 0, len(c.Requirements))

	for i, rc := range c.Requirements {
		if rc.Type == "" {
			return nil, fmt.Errorf("requirement %d has no type", i)
		}
		if _, dup := seen[rc.Type]; dup {
			return nil, fmt.Errorf("requirement type %q defined twice", rc.Type)
		}
		seen[rc.Type] = struct{}{}

		nr, err := rc.Requirements()
		if err != nil {
			return nil, err
		}
		res = append(res, nr)
	}

	return res, nil
}
