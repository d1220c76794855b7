// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/czerwonk/qoo_exporter/config"
	"tailscale.com/client/tailscale"
)

// tsDiscover lists the devices of a tailnet as probe targets. The API key is
// read from TS_API_KEY.
func tsDiscover(ctx context.Context, tailnet string) ([]config.TargetConfig, error) {
	key := os.Getenv("TS_API_KEY")
	if key == "" {
		return nil, errors.New("TS_API_KEY is not set")
	}

	tailscale.I_Acknowledge_This_API_Is_Unstable = true
	client := tailscale.NewClient(tailnet, tailscale.APIKey(key))

	devices, err := client.Devices(ctx, tailscale.DeviceAllFields)
	if err != nil {
		return nil, fmt.Errorf("could not list tailnet devices: %w", err)
	}

	targets := make([]config.TargetConfig, 0, len(devices))
	for _, dev := range devices {
		targets = append(targets, config.TargetConfig{
			Addr:   dev.Hostname,
			Labels: map[string]string{"tailnet": tailnet},
		})
	}

	return targets, nil
}
