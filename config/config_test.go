// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/czerwonk/qoo_exporter/sqa"
)

func TestParseConfig(t *testing.T) {
	f, err := os.Open("testdata/config_test.yml")
	if err != nil {
		t.Error("failed to open file", err)
		t.FailNow()
	}

	c, err := FromYAML(f)
	f.Close()
	if err != nil {
		t.Error("failed to parse", err)
		t.FailNow()
	}

	targets := []TargetConfig{
		{Addr: "8.8.8.8"},
		{Addr: "8.8.4.4"},
		{Addr: "2001:4860:4860::8888"},
		{Addr: "2001:4860:4860::8844", Labels: map[string]string{"site": "fra", "tier": "dns"}},
	}

	if !reflect.DeepEqual(targets, c.Targets) {
		t.Errorf("expected 4 targets (%v) but got %d (%v)", targets, len(c.Targets), c.Targets)
		t.FailNow()
	}

	if expected := 2*time.Minute + 15*time.Second; time.Duration(c.DNS.Refresh) != expected {
		t.Errorf("expected dns.refresh to be %v, got %v", expected, c.DNS.Refresh)
	}
	if expected := "1.1.1.1"; c.DNS.Nameserver != expected {
		t.Errorf("expected dns.nameserver to be %q, got %q", expected, c.DNS.Nameserver)
	}
	if expected := 4; c.DNS.Retries != expected {
		t.Errorf("expected dns.retries to be %d, got %d", expected, c.DNS.Retries)
	}

	if expected := 2 * time.Second; time.Duration(c.Ping.Interval) != expected {
		t.Errorf("expected ping.interval to be %v, got %v", expected, c.Ping.Interval)
	}
	if expected := 3 * time.Second; time.Duration(c.Ping.Timeout) != expected {
		t.Errorf("expected ping.timeout to be %v, got %v", expected, c.Ping.Timeout)
	}
	if expected := 120; c.Ping.Size != uint16(expected) {
		t.Errorf("expected ping.payload-size to be %d, got %d", expected, c.Ping.Size)
	}
	if expected := 10 * time.Minute; c.Ping.IDChangeInterval.Duration() != expected {
		t.Errorf("expected ping.id-change-interval to be %v, got %v", expected, c.Ping.IDChangeInterval)
	}
	if expected := 0.5; c.Ping.IDChangeThreshold != expected {
		t.Errorf("expected ping.id-change-threshold to be %v, got %v", expected, c.Ping.IDChangeThreshold)
	}

	if expected := 5 * time.Second; c.QoO.LossThreshold.Duration() != expected {
		t.Errorf("expected qoo.loss-threshold to be %v, got %v", expected, c.QoO.LossThreshold)
	}
	if expected := 0.05; c.QoO.Offset != expected {
		t.Errorf("expected qoo.offset to be %v, got %v", expected, c.QoO.Offset)
	}
	if expected := "ddsketch"; c.QoO.Sketch != expected {
		t.Errorf("expected qoo.sketch to be %q, got %q", expected, c.QoO.Sketch)
	}
	if expected := []float64{50, 90, 99}; !reflect.DeepEqual(expected, c.QoO.Percentiles) {
		t.Errorf("expected qoo.percentiles to be %v, got %v", expected, c.QoO.Percentiles)
	}
	if c.QoO.TrimLower != 5 || c.QoO.TrimUpper != 95 {
		t.Errorf("expected qoo.trim to be 5-95, got %v-%v", c.QoO.TrimLower, c.QoO.TrimUpper)
	}

	if expected := "/var/lib/qoo_exporter/history.db"; c.Store.Path != expected {
		t.Errorf("expected store.path to be %q, got %q", expected, c.Store.Path)
	}
}

func TestNetworkRequirements(t *testing.T) {
	c, err := Load("testdata/config_test.yml")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	reqs, err := c.NetworkRequirements()
	if err != nil {
		t.Fatalf("NetworkRequirements() error = %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirement sets, got %d", len(reqs))
	}

	voip := []sqa.Requirement{
		{Percentile: 50, Perfect: 20 * time.Millisecond, Useless: 150 * time.Millisecond},
		{Percentile: 99, Perfect: 50 * time.Millisecond, Useless: 300 * time.Millisecond},
	}
	if reqs[0].Type != "voip" || !reflect.DeepEqual(voip, reqs[0].Points()) {
		t.Errorf("unexpected voip requirements: %s %v", reqs[0].Type, reqs[0].Points())
	}

	web := []sqa.Requirement{
		{Percentile: 50, Perfect: 10 * time.Millisecond, Useless: 100 * time.Millisecond},
		{Percentile: 70, Perfect: 20 * time.Millisecond, Useless: 200 * time.Millisecond},
		{Percentile: 90, Perfect: 30 * time.Millisecond, Useless: 300 * time.Millisecond},
	}
	if reqs[1].Type != "web" || !reflect.DeepEqual(web, reqs[1].Points()) {
		t.Errorf("unexpected web requirements: %s %v", reqs[1].Type, reqs[1].Points())
	}
}

func TestNetworkRequirementsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing type",
			yaml: "requirements:\n  - points:\n      - {percentile: 50, perfect: 1ms, useless: 2ms}\n",
			want: "no type",
		},
		{
			name: "duplicate type",
			yaml: "requirements:\n  - type: a\n    points: [{percentile: 50, perfect: 1ms, useless: 2ms}]\n  - type: a\n    points: [{percentile: 50, perfect: 1ms, useless: 2ms}]\n",
			want: "defined twice",
		},
		{
			name: "inverted",
			yaml: "requirements:\n  - type: a\n    points: [{percentile: 50, perfect: 2ms, useless: 1ms}]\n",
			want: sqa.ErrInvertedRequirement.Error(),
		},
		{
			name: "points and curves",
			yaml: "requirements:\n  - type: a\n    points: [{percentile: 50, perfect: 1ms, useless: 2ms}]\n    perfect: [{percentile: 50, latency: 1ms}]\n",
			want: "not both",
		},
		{
			name: "empty",
			yaml: "requirements:\n  - type: a\n",
			want: "neither points nor curves",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := FromYAML(strings.NewReader(tt.yaml))
			if err != nil {
				t.Fatalf("FromYAML() error = %v", err)
			}

			_, err = c.NetworkRequirements()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("NetworkRequirements() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestTargetConfigMarshalYAML(t *testing.T) {
	tests := []struct {
		name   string
		target TargetConfig
		want   interface{}
	}{
		{
			"plain",
			TargetConfig{Addr: "example.com"},
			"example.com",
		},
		{
			"labels",
			TargetConfig{Addr: "example.com", Labels: map[string]string{"a": "b"}},
			map[string]map[string]string{"example.com": {"a": "b"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.target.MarshalYAML()
			if err != nil {
				t.Fatalf("MarshalYAML() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MarshalYAML() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("expected error for missing file")
	}
}
