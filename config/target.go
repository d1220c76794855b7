// SPDX-License-Identifier: MIT

package config

// TargetConfig is a host to probe with optional custom labels.
type TargetConfig struct {
	Addr   string
	Labels map[string]string
}

// UnmarshalYAML implements yaml.Unmarshaler interface. A target is either a
// plain host or a single-entry map of host to labels.
func (d *TargetConfig) UnmarshalYAML(unmashal func(interface{}) error) error {
	var s string
	if err := unmashal(&s); err == nil {
		d.Addr = s
		return nil
	}

	var x map[string]map[string]string
	if err := unmashal(&x); err != nil {
		return err
	}

	for addr, l := range x {
		d.Addr = addr
		d.Labels = l
	}

	return nil
}

// MarshalYAML implements yaml.Marshaler interface.
func (t TargetConfig) MarshalYAML() (interface{}, error) {
	if len(t.Labels) == 0 {
		return t.Addr, nil
	}

	return map[string]map[string]string{t.Addr: t.Labels}, nil
}

// TargetsFromHosts wraps plain host names without labels.
func TargetsFromHosts(hosts []string) []TargetConfig {
	res := make([]TargetConfig, len(hosts))
	for i, h := range hosts {
		res[i] = TargetConfig{Addr: h}
	}
	return res
}
