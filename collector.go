// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/czerwonk/qoo_exporter/store"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const prefix = "qoo_"

var baseLabelNames = []string{"target", "ip", "ip_version"}

func newDesc(name, help string, variableLabels []string, constLabels prometheus.Labels) *prometheus.Desc {
	return prometheus.NewDesc(prefix+name, help, variableLabels, constLabels)
}

func withLabels(labels []string, extra ...string) []string {
	res := make([]string, 0, len(labels)+len(extra))
	res = append(res, labels...)
	return append(res, extra...)
}

// summaryStore is the part of store.Store the collector needs.
type summaryStore interface {
	Save(ctx context.Context, sum store.Summary) error
}

type qooCollector struct {
	prober *prober
	opts   summaryOptions
	store  summaryStore

	samplesDesc    *prometheus.Desc
	lostDesc       *prometheus.Desc
	lossDesc       *prometheus.Desc
	scoreDesc      *prometheus.Desc
	partialDesc    *prometheus.Desc
	rpmDesc        *prometheus.Desc
	rttDesc        scaledMetrics
	percentileDesc scaledMetrics

	mutex     sync.Mutex
	summaries map[string]*summary
}

func newQoOCollector(p *prober, cl *customLabelSet, scale rttUnit, opts summaryOptions, st summaryStore) *qooCollector {
	labels := withLabels(baseLabelNames, cl.labelNames()...)

	return &qooCollector{
		prober:         p,
		opts:           opts,
		store:          st,
		samplesDesc:    newDesc("samples", "Number of probes sent in the last interval", labels, nil),
		lostDesc:       newDesc("lost_samples", "Number of probes lost in the last interval", labels, nil),
		lossDesc:       newDesc("loss_percent", "Packet loss in percent", labels, nil),
		scoreDesc:      newDesc("score", "Quality of outcome score (0-100) for a network requirement", withLabels(labels, "requirement"), nil),
		partialDesc:    newDesc("partial_score", "Quality of outcome score (0-100) of a single requirement percentile", withLabels(labels, "requirement", "percentile"), nil),
		rpmDesc:        newDesc("rpm", "Simplified responsiveness in round trips per minute", labels, nil),
		rttDesc:        newScaledDesc("rtt", "Round trip time", scale, withLabels(labels, "type")),
		percentileDesc: newScaledDesc("rtt_percentile", "Round trip time percentile", scale, withLabels(labels, "percentile")),
		summaries:      make(map[string]*summary),
	}
}

func (c *qooCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.samplesDesc
	ch <- c.lostDesc
	ch <- c.lossDesc
	ch <- c.scoreDesc
	ch <- c.partialDesc
	ch <- c.rpmDesc
	c.rttDesc.Describe(ch)
	c.percentileDesc.Describe(ch)
}

func (c *qooCollector) Collect(ch chan<- prometheus.Metric) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.update(time.Now())

	for _, s := range c.summaries {
		c.collectSummary(ch, s)
	}
}

// update rotates all intervals. Targets without any probe since the last
// scrape keep their previous summary.
func (c *qooCollector) update(now time.Time) {
	rotated, err := c.prober.Rotate()
	if err != nil {
		log.Errorln(err)
		return
	}

	current := make(map[string]*summary, len(rotated))
	for _, r := range rotated {
		if r.stats.Samples() == 0 {
			if prev, found := c.summaries[r.key]; found {
				current[r.key] = prev
			}
			r.stats.Close()
			continue
		}

		s := summarize(r.probeInfo, r.stats, c.opts, now)
		r.stats.Close()
		current[r.key] = s
		c.persist(s)
	}

	c.summaries = current
}

func (c *qooCollector) persist(s *summary) {
	if c.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.store.Save(ctx, s.record()); err != nil {
		log.Errorf("could not persist summary: %v", err)
	}
}

func (c *qooCollector) collectSummary(ch chan<- prometheus.Metric, s *summary) {
	l := withLabels([]string{s.host, s.addr.IP.String(), getIPVersion(s.addr).String()}, s.labelValues...)

	ch <- prometheus.MustNewConstMetric(c.samplesDesc, prometheus.GaugeValue, float64(s.samples), l...)
	ch <- prometheus.MustNewConstMetric(c.lostDesc, prometheus.GaugeValue, float64(s.lost), l...)
	if s.lossPercent.ok {
		ch <- prometheus.MustNewConstMetric(c.lossDesc, prometheus.GaugeValue, s.lossPercent.value, l...)
	}

	for _, m := range []struct {
		typ string
		v   optional
	}{
		{"best", s.best},
		{"worst", s.worst},
		{"mean", s.mean},
		{"median", s.median},
		{"std_dev", s.stdDev},
		{"trimmed_mean", s.trimmedMean},
	} {
		if m.v.ok {
			c.rttDesc.Collect(ch, m.v.value, withLabels(l, m.typ)...)
		}
	}

	for _, p := range s.percentiles {
		c.percentileDesc.Collect(ch, p.seconds, withLabels(l, formatPercentile(p.percentile))...)
	}

	if s.rpm.ok {
		ch <- prometheus.MustNewConstMetric(c.rpmDesc, prometheus.GaugeValue, s.rpm.value, l...)
	}

	for _, sc := range s.scores {
		ch <- prometheus.MustNewConstMetric(c.scoreDesc, prometheus.GaugeValue, sc.score, withLabels(l, sc.requirement)...)
		for _, part := range sc.parts {
			ch <- prometheus.MustNewConstMetric(c.partialDesc, prometheus.GaugeValue, part.Score,
				withLabels(l, sc.requirement, formatPercentile(part.Percentile))...)
		}
	}
}

func formatPercentile(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
