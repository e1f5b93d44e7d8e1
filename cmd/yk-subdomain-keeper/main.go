package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/api"
	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/config"
	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/controller"
	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/dns"
	_ "github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/dns/providers"
	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/state"
)

var Version = "dev"

func main() {
	opts := zap.Options{
		Development: true,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	log := ctrl.Log.WithName("setup")
	ctx := ctrl.SetupSignalHandler()

	log.Info("starting yk-subdomain-keeper", "version", Version)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("unable to load config: %w", err)
	}
	log.Info("loaded config",
		"afterServiceMoveAction", cfg.Policy.AfterServiceMoveAction.String(),
		"afterServiceDeletionAction", cfg.Policy.AfterServiceDeletionAction.String(),
		"providers", len(cfg.Providers))

	providers, err := buildProviders(cfg)
	if err != nil {
		return err
	}

	db, err := state.Open(ctx, cfg.Database, ctrl.Log.WithName("state"))
	if err != nil {
		return fmt.Errorf("unable to open state database: %w", err)
	}
	defer db.Close()
	log.Info("opened state database", "path", cfg.Database)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reconciler := &controller.LifecycleReconciler{
		Log:       ctrl.Log.WithName("lifecycle"),
		Policy:    cfg.Policy,
		Providers: providers,
		CacheFile: cfg.CacheFile,
		Metrics:   controller.NewMetrics(reg),
	}

	srv := api.New(cfg, ctrl.Log.WithName("api"), reconciler, db, reg)
	log.Info("starting api server", "addr", srv.Addr())
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("api server exited with error: %w", err)
	}
	return nil
}

func buildProviders(cfg *config.Config) (*dns.Set, error) {
	set := dns.NewSet()
	for _, p := range cfg.Providers {
		provider, err := dns.NewProvider(p.Type, ctrl.Log.WithName("dns-"+p.Type), p.Settings)
		if err != nil {
			return nil, fmt.Errorf("unable to create DNS provider %d: %w", p.ID, err)
		}
		if err := set.Add(p.ID, provider); err != nil {
			return nil, err
		}
		ctrl.Log.WithName("setup").Info("configured DNS provider", "id", p.ID, "type", p.Type)
	}
	ctrl.Log.WithName("setup").Info("provider set ready", "count", set.Len(), "types", dns.Registered())
	return set, nil
}
