// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/czerwonk/qoo_exporter/sqa"
)

// pingFunc sends one echo request and returns the round trip time.
type pingFunc func(addr *net.IPAddr, timeout time.Duration) (time.Duration, error)

type statsFactory func() (*sqa.Stats, error)

type probeInfo struct {
	host        string
	addr        net.IPAddr
	labelValues []string
}

// window holds the accumulator of the running interval. The accumulator is
// not safe for concurrent use, so every access goes through mu.
type window struct {
	mu       sync.Mutex
	stats    *sqa.Stats
	newStats statsFactory
}

func newWindow(f statsFactory) (*window, error) {
	s, err := f()
	if err != nil {
		return nil, err
	}
	return &window{stats: s, newStats: f}, nil
}

func (w *window) addResult(rtt time.Duration, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.stats.CountLoss()
		return
	}
	w.stats.AddSample(rtt)
}

// rotate starts a new interval and hands the finished one to the caller,
// who owns (and must close) it.
func (w *window) rotate() (*sqa.Stats, error) {
	fresh, err := w.newStats()
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	old := w.stats
	w.stats = fresh
	w.mu.Unlock()

	return old, nil
}

func (w *window) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Close()
}

type probeTarget struct {
	probeInfo
	window *window
	stop   chan struct{}
	wg     sync.WaitGroup
}

func (pt *probeTarget) run(ping pingFunc, interval, timeout, startupDelay time.Duration, onResult func(error)) {
	defer pt.wg.Done()

	if startupDelay > 0 {
		select {
		case <-time.After(startupDelay):
		case <-pt.stop:
			return
		}
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-pt.stop:
			return
		case <-tick.C:
			pt.wg.Add(1)
			go func() {
				defer pt.wg.Done()
				rtt, err := ping(&pt.addr, timeout)
				pt.window.addResult(rtt, err)
				onResult(err)
			}()
		}
	}
}

// rotatedStats is the finished interval of a single probe target.
type rotatedStats struct {
	key string
	probeInfo
	stats *sqa.Stats
}

// prober pings every registered address at a fixed interval and feeds the
// results into one accumulator per address.
type prober struct {
	ping     pingFunc
	interval time.Duration
	timeout  time.Duration
	newStats statsFactory

	mutex   sync.RWMutex
	targets map[string]*probeTarget

	countMu sync.Mutex
	sent    int
	lost    int
}

func newProber(ping pingFunc, interval, timeout time.Duration, f statsFactory) *prober {
	return &prober{
		ping:     ping,
		interval: interval,
		timeout:  timeout,
		newStats: f,
		targets:  make(map[string]*probeTarget),
	}
}

// AddTargetDelayed starts probing info.addr under key after startupDelay.
func (p *prober) AddTargetDelayed(key string, info probeInfo, startupDelay time.Duration) error {
	w, err := newWindow(p.newStats)
	if err != nil {
		return fmt.Errorf("could not create stats for %s: %w", key, err)
	}

	pt := &probeTarget{
		probeInfo: info,
		window:    w,
		stop:      make(chan struct{}),
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.removeTarget(key)
	p.targets[key] = pt

	pt.wg.Add(1)
	go pt.run(p.ping, p.interval, p.timeout, startupDelay, p.count)

	return nil
}

// RemoveTarget stops probing the address registered under key.
func (p *prober) RemoveTarget(key string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.removeTarget(key)
}

func (p *prober) removeTarget(key string) {
	pt, found := p.targets[key]
	if !found {
		return
	}

	delete(p.targets, key)
	close(pt.stop)
	go func() {
		pt.wg.Wait()
		pt.window.close()
	}()
}

// Stop stops probing all targets.
func (p *prober) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for key := range p.targets {
		p.removeTarget(key)
	}
}

// Rotate ends the running interval of every target and returns the finished
// accumulators ordered by key.
func (p *prober) Rotate() ([]rotatedStats, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	res := make([]rotatedStats, 0, len(p.targets))
	for key, pt := range p.targets {
		s, err := pt.window.rotate()
		if err != nil {
			for _, r := range res {
				r.stats.Close()
			}
			return nil, fmt.Errorf("could not rotate stats for %s: %w", key, err)
		}
		res = append(res, rotatedStats{key: key, probeInfo: pt.probeInfo, stats: s})
	}

	sort.Slice(res, func(i, j int) bool { return res[i].key < res[j].key })
	return res, nil
}

func (p *prober) count(err error) {
	p.countMu.Lock()
	defer p.countMu.Unlock()

	p.sent++
	if err != nil {
		p.lost++
	}
}

// lossRatioSinceLastCheck returns the share of lost probes since the
// previous call and resets the counters.
func (p *prober) lossRatioSinceLastCheck() (float64, bool) {
	p.countMu.Lock()
	defer p.countMu.Unlock()

	sent, lost := p.sent, p.lost
	p.sent, p.lost = 0, 0
	if sent == 0 {
		return 0, false
	}
	return float64(lost) / float64(sent), true
}
