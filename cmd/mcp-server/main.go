package main

import (
	"context"
	"flag"
	"fmt"
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
	"hostsentry/internal/mcpserver"
	"hostsentry/internal/remediation"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "hostsentry-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Stdout carries the MCP protocol, so the log goes to stderr.
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stderr"}
	log, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collectorCfg := collector.Config{
		SampleTimeout:   time.Duration(cfg.Collector.SampleTimeoutSeconds) * time.Second,
		DiskPath:        cfg.Collector.DiskPath,
		TopProcessCount: cfg.Collector.TopProcesses,
	}
	local := collector.NewLocalSource(collectorCfg)

	var (
		inv    inventory.Inventory
		source collector.MetricSource
	)
	if cfg.InventoryPath != "" {
		fileInv, err := inventory.LoadFile(cfg.InventoryPath)
		if err != nil {
			return err
		}
		inv = fileInv
		source = collector.NewSSHSource(fileInv.List(), collector.DefaultProbeCommand, cfg.PerHostTimeout())
	} else {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "localhost"
		}
		inv = &inventory.Static{Hosts: []inventory.Host{{HostID: hostname}}}
		source = local
	}

	registry, err := remediation.NewRegistry(cfg.Actions, log)
	if err != nil {
		return fmt.Errorf("build actions: %w", err)
	}

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
		Notifier:           alert.NewDispatcher(alert.NewLogChannel(log), log),
		Audit:              store,
		RemediationEnabled: cfg.RemediationEnabled,
		AlertingEnabled:    cfg.AlertingEnabled,
	}, log)

	srv := mcpserver.NewServer(mcpserver.Config{
		ServerName:    "hostsentry",
		ServerVersion: "1.0.0",
	}, eng, local, registry, store, log)

	return srv.Start(ctx)
}
