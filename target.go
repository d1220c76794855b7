// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type ipVersion uint8

const (
	ipv4 ipVersion = 4
	ipv6 ipVersion = 6
)

func (ipv ipVersion) String() string {
	return fmt.Sprintf("%d", ipv)
}

func getIPVersion(addr net.IPAddr) ipVersion {
	if addr.IP.To4() == nil {
		return ipv6
	}
	return ipv4
}

type target struct {
	host        string
	addresses   []net.IPAddr
	delay       time.Duration
	resolver    Resolver
	labelValues []string
	mutex       sync.Mutex
}

func (t *target) addOrUpdate(ctx context.Context, p *prober) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	addrs, err := t.resolver.LookupIPAddr(ctx, t.host)
	if err != nil {
		return fmt.Errorf("error resolving target %s: %w", t.host, err)
	}

	for _, addr := range addrs {
		err := t.addIfNew(addr, p)
		if err != nil {
			return err
		}
	}

	t.cleanUp(addrs, p)
	t.addresses = addrs

	return nil
}

func (t *target) addIfNew(addr net.IPAddr, p *prober) error {
	if isIPAddrInSlice(addr, t.addresses) {
		return nil
	}

	return t.add(addr, p)
}

func (t *target) cleanUp(addrs []net.IPAddr, p *prober) {
	for _, o := range t.addresses {
		if !isIPAddrInSlice(o, addrs) {
			name := t.nameForIP(o)
			log.Infof("removing target for host %s (%v)", t.host, o)
			p.RemoveTarget(name)
		}
	}
}

func (t *target) add(addr net.IPAddr, p *prober) error {
	name := t.nameForIP(addr)
	log.Infof("adding target for host %s (%v)", t.host, addr)
	return p.AddTargetDelayed(name, probeInfo{
		host:        t.host,
		addr:        addr,
		labelValues: t.labelValues,
	}, t.delay)
}

func (t *target) nameForIP(addr net.IPAddr) string {
	return fmt.Sprintf("%s %s %s", t.host, addr.IP, getIPVersion(addr))
}

func isIPAddrInSlice(ipa net.IPAddr, slice []net.IPAddr) bool {
	for _, x := range slice {
		if x.IP.Equal(ipa.IP) {
			return true
		}
	}

	return false
}
