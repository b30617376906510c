package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hostsentry/internal/alert"
	"hostsentry/internal/audit"
	"hostsentry/internal/collector"
	"hostsentry/internal/config"
	"hostsentry/internal/engine"
	"hostsentry/internal/inventory"
	"hostsentry/internal/remediation"
	"hostsentry/internal/web"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML configuration file")
		probe      = flag.Bool("probe", false, "print one local metric snapshot as JSON and exit")
	)
	flag.Parse()

	if *probe {
		if err := runProbe(); err != nil {
			fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "hostsentry: %v\n", err)
		os.Exit(1)
	}
}

// runProbe is the remote-sampling entry point: fleet pollers execute this
// binary over SSH and parse its stdout.
func runProbe() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	source := collector.NewLocalSource(collector.DefaultConfig())
	snap, err := source.Sample(ctx, "")
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(snap)
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inv, source, err := buildSource(cfg)
	if err != nil {
		return err
	}

	registry, err := remediation.NewRegistry(cfg.Actions, log)
	if err != nil {
		return fmt.Errorf("build actions: %w", err)
	}

	var channel alert.Channel
	if cfg.SMTP != nil {
		channel = alert.NewSMTPChannel(*cfg.SMTP)
	} else {
		channel = alert.NewLogChannel(log)
	}
	dispatcher := alert.NewDispatcher(channel, log)

	store, err := audit.NewStore(cfg.AuditDSN, audit.WithTimeout(5*time.Second))
	if err != nil {
		return err
	}
	defer store.Close()

	eng := engine.New(engine.Options{
		Interval:           cfg.PollInterval(),
		Limits:             cfg.Limits(),
		Cooldowns:          engine.NewCooldownTracker(cfg.CooldownDefault(), cfg.CooldownOverrides()),
		Poller:             engine.NewFleetPoller(source, inv, cfg.PerHostTimeout(), log),
		Registry:           registry,
		Notifier:           dispatcher,
		Audit:              store,
		RemediationEnabled: cfg.RemediationEnabled,
		AlertingEnabled:    cfg.AlertingEnabled,
	}, log)

	go eng.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: web.NewServer(eng, store, log).Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("hostsentry started",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.Int("hosts", len(inv.List())),
		zap.Bool("remediation_enabled", cfg.RemediationEnabled),
		zap.Bool("alerting_enabled", cfg.AlertingEnabled))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	log.Info("hostsentry stopped")
	return nil
}

// buildSource picks fleet mode (SSH to every inventory host) when an
// inventory file is configured, single-host mode otherwise.
func buildSource(cfg config.Config) (inventory.Inventory, collector.MetricSource, error) {
	collectorCfg := collector.Config{
		SampleTimeout:   time.Duration(cfg.Collector.SampleTimeoutSeconds) * time.Second,
		DiskPath:        cfg.Collector.DiskPath,
		TopProcessCount: cfg.Collector.TopProcesses,
	}

	if cfg.InventoryPath != "" {
		inv, err := inventory.LoadFile(cfg.InventoryPath)
		if err != nil {
			return nil, nil, err
		}
		source := collector.NewSSHSource(inv.List(), collector.DefaultProbeCommand, cfg.PerHostTimeout())
		return inv, source, nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	inv := &inventory.Static{Hosts: []inventory.Host{{HostID: hostname}}}
	return inv, collector.NewLocalSource(collectorCfg), nil
}
