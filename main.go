// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/czerwonk/qoo_exporter/config"
	"github.com/czerwonk/qoo_exporter/sqa"
	"github.com/czerwonk/qoo_exporter/store"
	"github.com/digineo/go-ping"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const version string = "0.1.0"

const (
	sketchTDigest  = "tdigest"
	sketchDDSketch = "ddsketch"
)

var (
	showVersion      = kingpin.Flag("version", "Print version information").Default().Bool()
	listenAddress    = kingpin.Flag("web.listen-address", "Address on which to expose metrics and web interface").Default(":9428").String()
	metricsPath      = kingpin.Flag("web.telemetry-path", "Path under which to expose metrics").Default("/metrics").String()
	configFile       = kingpin.Flag("config.path", "Path to config file").Default("").String()
	pingInterval     = kingpin.Flag("ping.interval", "Interval for ICMP echo requests").Default("1s").Duration()
	pingTimeout      = kingpin.Flag("ping.timeout", "Timeout for ICMP echo request").Default("4s").Duration()
	pingSize         = kingpin.Flag("ping.size", "Payload size for ICMP echo requests").Default("56").Uint16()
	pingIDInterval   = kingpin.Flag("ping.id-change-interval", "Interval for checking whether the ICMP identifier should be changed (0 if disabled)").Default("0s").Duration()
	pingIDThreshold  = kingpin.Flag("ping.id-change-threshold", "Packet loss ratio above which the ICMP identifier is changed (0 to change on every check)").Default("0").Float64()
	dnsRefresh       = kingpin.Flag("dns.refresh", "Interval for refreshing DNS records and updating targets accordingly (0 if disabled)").Default("1m").Duration()
	dnsNameServer    = kingpin.Flag("dns.nameserver", "DNS server used to resolve hostname of targets").Default("").String()
	dnsRetries       = kingpin.Flag("dns.retries", "Number of retries of a failed DNS lookup").Default("2").Int()
	lossThreshold    = kingpin.Flag("qoo.loss-threshold", "Round trip time above which a reply counts as lost").Default("15s").Duration()
	sumOffset        = kingpin.Flag("qoo.offset", "Shift (in seconds) applied to samples before summing").Default("0.1").Float64()
	sketchType       = kingpin.Flag("qoo.sketch", "Quantile sketch to use. Valid choices: [tdigest, ddsketch]").Default(sketchTDigest).String()
	compression      = kingpin.Flag("qoo.compression", "Compression of the t-digest sketch").Default("50").Float64()
	relativeAccuracy = kingpin.Flag("qoo.relative-accuracy", "Relative accuracy of the DDSketch").Default("0.01").Float64()
	percentiles      = kingpin.Flag("qoo.percentiles", "Percentiles to export").Default("50", "90", "95", "99").Float64List()
	trimLower        = kingpin.Flag("qoo.trim-lower", "Lower percentile of the exported trimmed mean").Default("5").Float64()
	trimUpper        = kingpin.Flag("qoo.trim-upper", "Upper percentile of the exported trimmed mean").Default("95").Float64()
	storePath        = kingpin.Flag("store.path", "Path of the SQLite database for summary history (empty if disabled)").Default("").String()
	tailnet          = kingpin.Flag("tailscale.tailnet", "Tailnet whose devices are added as targets (API key read from TS_API_KEY)").Default("").String()
	logLevel         = kingpin.Flag("log.level", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error, fatal]").Default("info").String()
	rttMode          = kingpin.Flag("metrics.rttunit", "Export round trip times as either millis, or seconds, or both. Valid choices: [ms, s, both]").Default("s").String()
	targets          = kingpin.Arg("targets", "A list of targets to ping").Strings()
)

// Each new ping ID is incremented by PINGID_INCR, a large value relatively
// prime to 2^16, so IDs are spread over the whole space and not reused
// before all others were handed out.
const PINGID_INCR = 29479

// The first ID chosen is the PID.
var lastPingId = uint32(os.Getpid() - PINGID_INCR)

func main() {
	kingpin.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("could not load .env: %v", err)
	}

	setLogLevel(*logLevel)

	rttMetricsScale := rttUnitFromString(*rttMode)
	if rttMetricsScale == rttInvalid {
		kingpin.FatalUsage("metrics.rttunit must be `ms` for millis, or `s` for seconds, or `both`")
	}
	log.Infof("rtt units: %s", rttMetricsScale)

	if mpath := *metricsPath; mpath == "" {
		log.Warnln("web.telemetry-path is empty, correcting to `/metrics`")
		mpath = "/metrics"
		metricsPath = &mpath
	} else if mpath[0] != '/' {
		mpath = "/" + mpath
		metricsPath = &mpath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		kingpin.FatalUsage("could not load config.path: %v", err)
	}

	if *tailnet != "" {
		discovered, err := tsDiscover(ctx, *tailnet)
		if err != nil {
			log.Fatalf("could not discover tailnet %s: %v", *tailnet, err)
		}
		log.Infof("discovered %d devices in tailnet %s", len(discovered), *tailnet)
		cfg.Targets = append(cfg.Targets, discovered...)
	}

	if len(cfg.Targets) == 0 {
		kingpin.FatalUsage("no targets specified")
	}

	if cfg.Ping.Size > 65500 {
		kingpin.FatalUsage("ping.size must be between 0 and 65500")
	}

	f, err := newStatsFactory(cfg)
	if err != nil {
		kingpin.FatalUsage("%v", err)
	}

	reqs, err := cfg.NetworkRequirements()
	if err != nil {
		kingpin.FatalUsage("invalid requirements: %v", err)
	}
	requirements := &requirementSet{}
	requirements.Store(reqs)
	log.Infof("loaded %d network requirement sets", len(reqs))

	var st *store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			log.Fatalf("could not open store: %v", err)
		}
		defer st.Close()
		log.Infof("persisting summaries to %s (run %s)", cfg.Store.Path, st.Run())
	}

	p, err := startProber(ctx, cfg, f)
	if err != nil {
		log.Errorln(err)
		os.Exit(2)
	}
	defer p.Stop()

	if *configFile != "" {
		go watchRequirements(ctx, *configFile, requirements)
	}

	opts := summaryOptions{
		percentiles:  uniquePercentiles(cfg.QoO.Percentiles),
		trimLower:    cfg.QoO.TrimLower,
		trimUpper:    cfg.QoO.TrimUpper,
		requirements: requirements,
	}
	cl := newCustomLabelSet(cfg.Targets)

	var sumStore summaryStore
	if st != nil {
		sumStore = st
	}
	c := newQoOCollector(p, cl, rttMetricsScale, opts, sumStore)

	if err := startServer(ctx, c, st); err != nil {
		log.Fatal(err)
	}
}

func printVersion() {
	fmt.Println("qoo-exporter")
	fmt.Printf("Version: %s\n", version)
	fmt.Println("Author(s): Philip Berndroth, Daniel Czerwonk")
	fmt.Println("Quality of outcome exporter for go-ping")
}

// newPingId returns an ID which won't overlap with recently used ones. IDs
// below 1024 are skipped since the kernel and ping(8) tend to use those.
func newPingId() uint16 {
	for {
		if id := uint16(atomic.AddUint32(&lastPingId, PINGID_INCR)); id >= 1024 {
			return id
		}
	}
}

// newStatsFactory validates the accumulator settings once and returns a
// constructor for fresh accumulators.
func newStatsFactory(cfg *config.Config) (statsFactory, error) {
	var newSketch func() (sqa.Sketch, error)
	switch cfg.QoO.Sketch {
	case sketchTDigest:
		c := cfg.QoO.Compression
		if c <= 0 {
			return nil, fmt.Errorf("qoo.compression must be positive, got %v", c)
		}
		newSketch = func() (sqa.Sketch, error) {
			return sqa.NewTDigest(c), nil
		}
	case sketchDDSketch:
		acc := cfg.QoO.RelativeAccuracy
		newSketch = func() (sqa.Sketch, error) {
			return sqa.NewDDSketch(acc)
		}
	default:
		return nil, fmt.Errorf("qoo.sketch must be `%s` or `%s`, got %q", sketchTDigest, sketchDDSketch, cfg.QoO.Sketch)
	}

	if lo, hi := cfg.QoO.TrimLower, cfg.QoO.TrimUpper; lo < 0 || hi > 100 || lo >= hi {
		return nil, fmt.Errorf("qoo trim range must satisfy 0 <= lower < upper <= 100, got %v-%v", lo, hi)
	}

	threshold := cfg.QoO.LossThreshold.Duration()
	offset := cfg.QoO.Offset
	f := func() (*sqa.Stats, error) {
		sk, err := newSketch()
		if err != nil {
			return nil, err
		}
		return sqa.NewStats(sqa.WithLossThreshold(threshold), sqa.WithOffset(offset), sqa.WithSketch(sk))
	}

	// fail at startup rather than on the first probe
	s, err := f()
	if err != nil {
		return nil, fmt.Errorf("invalid qoo settings: %w", err)
	}
	s.Close()

	return f, nil
}

func startProber(ctx context.Context, cfg *config.Config, f statsFactory) (*prober, error) {
	resolver := setupResolver(cfg.DNS.Nameserver, cfg.DNS.Retries)

	var bind4, bind6 string
	if ln, err := net.Listen("tcp4", "127.0.0.1:0"); err == nil {
		// ipv4 enabled
		ln.Close()
		bind4 = "0.0.0.0"
	}
	if ln, err := net.Listen("tcp6", "[::1]:0"); err == nil {
		// ipv6 enabled
		ln.Close()
		bind6 = "::"
	}

	pinger, err := ping.New(bind4, bind6)
	if err != nil {
		return nil, fmt.Errorf("cannot start probing: %w", err)
	}
	pinger.Id = newPingId()

	if pinger.PayloadSize() != cfg.Ping.Size {
		pinger.SetPayloadSize(cfg.Ping.Size)
	}

	p := newProber(pinger.Ping, cfg.Ping.Interval.Duration(), cfg.Ping.Timeout.Duration(), f)
	log.Infof("Created new prober (interval=%s, timeout=%s, sketch=%s)",
		cfg.Ping.Interval.Duration(),
		cfg.Ping.Timeout.Duration(),
		cfg.QoO.Sketch)

	cl := newCustomLabelSet(cfg.Targets)
	tgts := make([]*target, len(cfg.Targets))
	for i, tc := range cfg.Targets {
		t := &target{
			host:        tc.Addr,
			addresses:   make([]net.IPAddr, 0),
			delay:       time.Duration(10*i) * time.Millisecond,
			resolver:    resolver,
			labelValues: cl.labelValues(tc),
		}
		tgts[i] = t

		if err := t.addOrUpdate(ctx, p); err != nil {
			log.Errorln(err)
		}
	}

	go startDNSAutoRefresh(ctx, cfg.DNS.Refresh.Duration(), tgts, p)
	go startPingIdAutoUpdate(ctx, cfg.Ping.IDChangeInterval.Duration(), cfg.Ping.IDChangeThreshold, pinger, p)

	return p, nil
}

func startDNSAutoRefresh(ctx context.Context, interval time.Duration, tgts []*target, p *prober) {
	if interval <= 0 {
		return
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			refreshDNS(ctx, tgts, p)
		}
	}
}

const maxConcurrentLookups = 16

func refreshDNS(ctx context.Context, tgts []*target, p *prober) {
	log.Debugln("Refreshing DNS")

	var g errgroup.Group
	g.SetLimit(maxConcurrentLookups)
	for _, t := range tgts {
		g.Go(func() error {
			if err := t.addOrUpdate(ctx, p); err != nil {
				log.Errorf("could not refresh dns: %v", err)
			}
			return nil
		})
	}
	g.Wait()
}

func startPingIdAutoUpdate(ctx context.Context, interval time.Duration, threshold float64, pinger *ping.Pinger, p *prober) {
	if interval <= 0 {
		return
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			log.Debugln("Checking for Ping ID update")
			if overLossThreshold(p, threshold) {
				updatePingId(pinger)
			}
		}
	}
}

func overLossThreshold(p *prober, threshold float64) bool {
	ratio, ok := p.lossRatioSinceLastCheck()
	if threshold <= 0 {
		return true
	}
	if !ok {
		return false
	}

	log.Debugf("prober packet loss: %f (threshold=%f)", ratio, threshold)
	return ratio >= threshold
}

func updatePingId(pinger *ping.Pinger) {
	pinger.Id = newPingId()
	log.Debugf("Setting new ping ID of %d", pinger.Id)
}

// watchRequirements swaps in the requirement sets of the config file
// whenever it changes. Invalid sets are logged and the previous ones kept.
func watchRequirements(ctx context.Context, path string, rs *requirementSet) {
	err := config.Watch(ctx, path, func(cfg *config.Config) {
		reqs, err := cfg.NetworkRequirements()
		if err != nil {
			log.Errorf("ignoring invalid requirements: %v", err)
			return
		}
		rs.Store(reqs)
		log.Infof("reloaded %d network requirement sets", len(reqs))
	})
	if err != nil {
		log.Errorf("could not watch config: %v", err)
	}
}

func startServer(ctx context.Context, c prometheus.Collector, st *store.Store) error {
	log.Infof("Starting qoo exporter (Version: %s)", version)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, indexHTML, *metricsPath)
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	l := log.New()
	l.Level = log.ErrorLevel

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      l,
		ErrorHandling: promhttp.ContinueOnError,
	})
	mux.Handle(*metricsPath, h)

	if st != nil {
		mux.Handle("/history", historyHandler(st))
	}

	srv := &http.Server{Addr: *listenAddress, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("Listening for %s on %s", *metricsPath, *listenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	if *configFile == "" {
		cfg := config.Config{}
		addFlagToConfig(&cfg)

		return &cfg, nil
	}

	cfg, err := config.Load(*configFile)
	if err == nil {
		addFlagToConfig(cfg)
	}

	return cfg, err
}

// addFlagToConfig updates cfg with command line flag values, unless the
// config has non-zero values.
func addFlagToConfig(cfg *config.Config) {
	if len(cfg.Targets) == 0 {
		cfg.Targets = config.TargetsFromHosts(*targets)
	}
	if cfg.Ping.Interval == 0 {
		cfg.Ping.Interval.Set(*pingInterval)
	}
	if cfg.Ping.Timeout == 0 {
		cfg.Ping.Timeout.Set(*pingTimeout)
	}
	if cfg.Ping.Size == 0 {
		cfg.Ping.Size = *pingSize
	}
	if cfg.Ping.IDChangeInterval == 0 {
		cfg.Ping.IDChangeInterval.Set(*pingIDInterval)
	}
	if cfg.Ping.IDChangeThreshold == 0 {
		cfg.Ping.IDChangeThreshold = *pingIDThreshold
	}
	if cfg.DNS.Refresh == 0 {
		cfg.DNS.Refresh.Set(*dnsRefresh)
	}
	if cfg.DNS.Nameserver == "" {
		cfg.DNS.Nameserver = *dnsNameServer
	}
	if cfg.DNS.Retries == 0 {
		cfg.DNS.Retries = *dnsRetries
	}
	if cfg.QoO.LossThreshold == 0 {
		cfg.QoO.LossThreshold.Set(*lossThreshold)
	}
	if cfg.QoO.Offset == 0 {
		cfg.QoO.Offset = *sumOffset
	}
	if cfg.QoO.Sketch == "" {
		cfg.QoO.Sketch = *sketchType
	}
	if cfg.QoO.Compression == 0 {
		cfg.QoO.Compression = *compression
	}
	if cfg.QoO.RelativeAccuracy == 0 {
		cfg.QoO.RelativeAccuracy = *relativeAccuracy
	}
	if len(cfg.QoO.Percentiles) == 0 {
		cfg.QoO.Percentiles = *percentiles
	}
	if cfg.QoO.TrimLower == 0 && cfg.QoO.TrimUpper == 0 {
		cfg.QoO.TrimLower = *trimLower
		cfg.QoO.TrimUpper = *trimUpper
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = *storePath
	}
}

const indexHTML = `<!doctype html>
<html>
<head>
	<meta charset="UTF-8">
	<title>QoO Exporter (Version ` + version + `)</title>
</head>
<body>
	<h1>QoO Exporter</h1>
	<p><a href="%s">Metrics</a></p>
	<h2>More information:</h2>
	<p><a href="https://github.com/czerwonk/qoo_exporter">github.com/czerwonk/qoo_exporter</a></p>
</body>
</html>
`
