// SPDX-License-Identifier: MIT

package main

import (
	"sort"

	"github.com/czerwonk/qoo_exporter/config"
)

// customLabelSet is the union of all label names configured on targets.
// Targets lacking a label export it empty.
type customLabelSet struct {
	names   []string
	nameMap map[string]struct{}
}

func newCustomLabelSet(targets []config.TargetConfig) *customLabelSet {
	cl := &customLabelSet{
		nameMap: make(map[string]struct{}),
		names:   make([]string, 0),
	}

	for _, t := range targets {
		cl.addLabelsForTarget(t)
	}
	sort.Strings(cl.names)

	return cl
}

func (cl *customLabelSet) addLabelsForTarget(t config.TargetConfig) {
	for name := range t.Labels {
		if _, exists := cl.nameMap[name]; exists {
			continue
		}
		if isReservedLabel(name) {
			continue
		}

		cl.names = append(cl.names, name)
		cl.nameMap[name] = struct{}{}
	}
}

func isReservedLabel(name string) bool {
	for _, l := range baseLabelNames {
		if l == name {
			return true
		}
	}
	for _, l := range []string{"type", "percentile", "requirement"} {
		if l == name {
			return true
		}
	}
	return false
}

func (cl *customLabelSet) labelNames() []string {
	return cl.names
}

func (cl *customLabelSet) labelValues(t config.TargetConfig) []string {
	values := make([]string, len(cl.names))
	if t.Labels == nil {
		return values
	}

	for i, name := range cl.names {
		if value, isSet := t.Labels[name]; isSet {
			values[i] = value
		}
	}

	return values
}
