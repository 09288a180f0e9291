// Command p1budget runs the residential current-budget controller: it
// reads grid/inverter/battery state once per tick, applies the active
// budget policy, and drives a downstream P1-telegram consumer, all
// exposed over an HTTP/JSON RPC surface.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devskill-org/p1budget/internal/config"
	"github.com/devskill-org/p1budget/internal/core"
	"github.com/devskill-org/p1budget/internal/corelog"
	"github.com/devskill-org/p1budget/internal/discovery"
	"github.com/devskill-org/p1budget/internal/httpapi"
	"github.com/devskill-org/p1budget/internal/inverter"
	"github.com/devskill-org/p1budget/internal/metrics"
	"github.com/devskill-org/p1budget/internal/monitor"
	"github.com/devskill-org/p1budget/internal/p1out"
	"github.com/devskill-org/p1budget/internal/policy"
	"github.com/devskill-org/p1budget/internal/settings"
	"github.com/devskill-org/p1budget/internal/simulator"
)

const product = "p1budget"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	log := corelog.New(os.Stdout, fmt.Sprintf("[%s] ", product))

	args := os.Args[1:]
	if len(args) == 1 && (args[0] == "--help" || args[0] == "-help") {
		printUsage()
		return nil
	}

	cfg := config.New(log)
	if err := cfg.LoadDefaultFiles(product); err != nil {
		return fmt.Errorf("loading config files: %w", err)
	}
	if err := cfg.LoadCLI(args); err != nil {
		printUsage()
		os.Exit(-1)
	}

	verbose := config.Subscribe(cfg, "verbose", config.ParseBool, false)
	log.Verbose = verbose.Get()

	settingsPath := config.Subscribe(cfg, "settings_file", config.ParseString, product+"-settings.json")
	store, err := settings.Load(settingsPath.Get(), log)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	registry := core.NewRegistry(log)

	tunables := policy.NewTunables(store, cfg)
	red := policy.NewRed(tunables)
	registry.RegisterPolicy(red)
	registry.RegisterPolicy(policy.NewOrange(tunables, red))
	registry.RegisterPolicy(policy.NewYellow(tunables, red))
	registry.RegisterPolicy(policy.NewGreen(tunables, red))
	registry.RegisterProducer(policy.NewSchedule(registry, store, cfg))

	useSimulator := config.Subscribe(cfg, "simulator", config.ParseBool, false)
	if useSimulator.Get() {
		sim := simulator.New(simulator.DefaultConfig())
		registry.RegisterProducer(sim)
		registry.RegisterConsumer(sim)
	} else {
		modbusAddr := config.Subscribe(cfg, "inverter.address", config.ParseString, "")
		modbusSlave := config.Subscribe(cfg, "inverter.slave_id", config.ParseInt, 1)
		inv := inverter.New(modbusAddr.Get(), byte(modbusSlave.Get()), 2*time.Second, log)
		registry.RegisterProducer(inv)
		defer inv.Close()

		serviceType := config.Subscribe(cfg, "discovery.service", config.ParseString, "_modbus._tcp")
		instance := config.Subscribe(cfg, "discovery.instance", config.ParseString, "")
		if serviceType.Get() != "" {
			browser := discovery.New(serviceType.Get(), instance.Get(), log)
			discoveryCtx, cancelDiscovery := context.WithCancel(context.Background())
			defer cancelDiscovery()
			go browser.Run(discoveryCtx, inv)
		}

		serialDevice := config.Subscribe(cfg, "p1out.device", config.ParseString, "/dev/ttyUSB0")
		serialBaud := config.Subscribe(cfg, "p1out.baud", config.ParseInt, 115200)
		consumer := p1out.New(serialDevice.Get(), serialBaud.Get(), log)
		registry.RegisterConsumer(consumer)
		defer consumer.Close()
	}

	mon := monitor.New()
	registry.RegisterConsumer(mon)

	registry.SetActivePolicy(0)

	promRegistry := prometheus.NewRegistry()
	met := metrics.New(promRegistry)
	registry.SetErrorRecorder(met)

	intervalMs := config.Subscribe(cfg, "interval", config.ParseInt, 1000)
	scheduler := core.NewScheduler(registry, time.Duration(intervalMs.Get())*time.Millisecond, log)
	scheduler.SetTickRecorder(met)

	httpAddr := config.Subscribe(cfg, "http.addr", config.ParseString, ":8080")
	docRoot := config.Subscribe(cfg, "http.doc_root", config.ParseString, "./web")
	latitude := config.Subscribe(cfg, "location.latitude", config.ParseFloat, 52.0)
	longitude := config.Subscribe(cfg, "location.longitude", config.ParseFloat, 5.0)

	server := httpapi.New(httpapi.Config{
		Addr:      httpAddr.Get(),
		DocRoot:   docRoot.Get(),
		Latitude:  latitude.Get(),
		Longitude: longitude.Get(),
	}, registry, store, mon, log)
	server.Start()

	metricsAddr := config.Subscribe(cfg, "metrics.addr", config.ParseString, ":9090")
	metricsServer := startMetricsServer(metricsAddr.Get(), promRegistry, log)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()

	log.Infof("%s started, listening on %s", product, httpAddr.Get())
	<-sigCh
	log.Infof("shutdown signal received")
	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("http server shutdown: %v", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if err := store.Flush(); err != nil {
		log.Errorf("settings flush: %v", err)
	}

	log.Infof("%s stopped", product)
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: p1budget [--<key> <value>]*")
}

func startMetricsServer(addr string, reg *prometheus.Registry, log *corelog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %v", err)
		}
	}()
	return srv
}
