// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	log "github.com/sirupsen/logrus"
)

type Resolver interface {
	// LookupIPAddr resolves a host to its IP addresses.
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

type retryingResolver struct {
	resolver Resolver
	policy   retrypolicy.RetryPolicy[[]net.IPAddr]
}

// newRetryingResolver retries failed lookups up to retries times with
// exponential backoff starting at delay.
func newRetryingResolver(r Resolver, retries int, delay time.Duration) Resolver {
	if retries <= 0 {
		return r
	}

	policy := retrypolicy.Builder[[]net.IPAddr]().
		WithMaxRetries(retries).
		WithBackoff(delay, 10*delay).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[[]net.IPAddr]) {
			log.Debugf("retrying DNS lookup (attempt %d): %v", e.Attempts(), e.LastError())
		}).
		Build()

	return &retryingResolver{resolver: r, policy: policy}
}

func (r *retryingResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return failsafe.NewExecutor[[]net.IPAddr](r.policy).
		WithContext(ctx).
		Get(func() ([]net.IPAddr, error) {
			return r.resolver.LookupIPAddr(ctx, host)
		})
}

func setupResolver(nameserver string, retries int) Resolver {
	var r *net.Resolver
	if nameserver == "" {
		r = net.DefaultResolver
	} else {
		if !strings.HasSuffix(nameserver, ":53") {
			nameserver += ":53"
		}
		dialer := func(ctx context.Context, network, address string) (net.Conn, error) {
			d := net.Dialer{}

			return d.DialContext(ctx, "udp", nameserver)
		}
		r = &net.Resolver{PreferGo: true, Dial: dialer}
	}

	return newRetryingResolver(r, retries, 100*time.Millisecond)
}
