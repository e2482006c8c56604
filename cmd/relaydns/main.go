package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nolancs/RelayDNS/internal/cache"
	"github.com/nolancs/RelayDNS/internal/log"
	"github.com/nolancs/RelayDNS/internal/metrics"
	"github.com/nolancs/RelayDNS/internal/proxy"
)

const (
	defaultListenPort   = 53
	defaultUpstreamAddr = "8.8.8.8"
	defaultUpstreamPort = 53
)

func main() {
	var (
		logFile      = flag.String("log-file", "", "rotating log file path, empty disables file logging")
		logStdout    = flag.Bool("log-stdout", true, "log to stdout")
		verbose      = flag.Bool("verbose", false, "debug-level logging")
		jsonLog      = flag.Bool("log-json", false, "JSON log encoding instead of console")
		metricsAddr  = flag.String("metrics-addr", "", "address to serve Prometheus metrics on, empty disables it")
		cacheSize    = flag.Int("cache-size", 0, "question/response cache entries, 0 disables the cache")
		cacheTTL     = flag.Duration("cache-ttl", time.Minute, "cache entry lifetime")
		reqTimeout   = flag.Duration("request-timeout", 2*time.Second, "how long an in-flight request may go unanswered")
		scanInterval = flag.Duration("scan-interval", time.Second, "how often the sweeper reclaims expired requests")
	)
	flag.Parse()

	lc := log.Config{
		STDOUT:     *logStdout,
		File:       *logFile,
		JSONFormat: *jsonLog,
		MaxAge:     2,
		MaxSize:    10,
		MaxBackups: 100,
	}
	if *verbose {
		lc.Level = -1
	}
	if err := log.Init(lc); err != nil {
		fmt.Fprintln(os.Stderr, "log init error:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	listenPort, upstreamHost, upstreamPort, err := parseArgs(flag.Args())
	if err != nil {
		log.Sugar.Errorw("invalid arguments", "error", err)
		os.Exit(1)
	}

	upstreamAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(upstreamHost, strconv.Itoa(upstreamPort)))
	if err != nil {
		log.Sugar.Errorw("failed to resolve upstream address", "host", upstreamHost, "error", err)
		os.Exit(1)
	}

	registry := metrics.New(prometheus.DefaultRegisterer)

	var questionCache cache.Cache
	if *cacheSize > 0 {
		lru, err := cache.New(*cacheSize, *cacheTTL)
		if err != nil {
			log.Sugar.Errorw("failed to create cache", "error", err)
			os.Exit(1)
		}
		questionCache = lru
	}

	server, err := proxy.New(proxy.Config{
		ClientAddr:     &net.UDPAddr{Port: listenPort},
		UpstreamAddr:   upstreamAddr,
		RequestTimeout: *reqTimeout,
		ScanInterval:   *scanInterval,
		Cache:          questionCache,
		Metrics:        registry,
	})
	if err != nil {
		log.Sugar.Errorw("failed to start proxy", "error", err)
		os.Exit(1)
	}

	log.Sugar.Infow("relaydns starting",
		"listenPort", listenPort,
		"upstream", upstreamAddr.String(),
		"cacheEnabled", questionCache != nil,
	)

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	waitForShutdownSignal(cancel)

	err = server.Run(ctx)

	snap := registry.Snapshot()
	log.Sugar.Infow("relaydns stopped",
		"packetsIn", snap.PacketsIn,
		"packetsOut", snap.PacketsOut,
		"requests", snap.Requests,
		"served", snap.Served,
		"timeOuts", snap.TimeOuts,
		"processing", snap.Processing(),
	)

	if err != nil {
		os.Exit(1)
	}
}

func parseArgs(args []string) (listenPort int, upstreamHost string, upstreamPort int, err error) {
	listenPort, upstreamHost, upstreamPort = defaultListenPort, defaultUpstreamAddr, defaultUpstreamPort

	if len(args) > 0 {
		if listenPort, err = strconv.Atoi(args[0]); err != nil {
			return 0, "", 0, fmt.Errorf("listenPort: %w", err)
		}
	}
	if len(args) > 1 {
		upstreamHost = args[1]
	}
	if len(args) > 2 {
		if upstreamPort, err = strconv.Atoi(args[2]); err != nil {
			return 0, "", 0, fmt.Errorf("upstreamPort: %w", err)
		}
	}

	if listenPort < 0 || listenPort > 65535 {
		return 0, "", 0, fmt.Errorf("listenPort %d out of range", listenPort)
	}
	if upstreamPort < 0 || upstreamPort > 65535 {
		return 0, "", 0, fmt.Errorf("upstreamPort %d out of range", upstreamPort)
	}

	return listenPort, upstreamHost, upstreamPort, nil
}

// waitForShutdownSignal arms SIGINT/SIGTERM/SIGILL/SIGABRT (§6). The first
// signal cancels ctx to begin a clean shutdown; a second signal means
// shutdown is stuck, so it exits immediately rather than trying to re-arm
// the default OS disposition.
func waitForShutdownSignal(cancel context.CancelFunc) {
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, syscall.SIGILL, syscall.SIGABRT)

	var signaled atomic.Bool

	go func() {
		for s := range sc {
			if !signaled.CompareAndSwap(false, true) {
				log.Sugar.Warnw("second shutdown signal, exiting immediately", "signal", s)
				os.Exit(1)
			}
			log.Sugar.Infow("shutdown signal received", "signal", s)
			cancel()
		}
	}()
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Sugar.Infow("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Sugar.Errorw("metrics server stopped", "error", err)
	}
}
