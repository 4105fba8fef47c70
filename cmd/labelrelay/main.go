package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/orrn/labelrelay/internal/api"
	"github.com/orrn/labelrelay/internal/config"
	"github.com/orrn/labelrelay/internal/core"
	"github.com/orrn/labelrelay/internal/logging"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("labelrelay", flag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the YAML config file")
	port := flags.IntP("port", "p", 0, "listen port, overrides config and environment")
	showVersion := flags.Bool("version", false, "print the version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("labelrelay %s\n", version)
		return nil
	}

	cfg, err := loadConfig(*configPath, *port)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	registry, err := buildRegistry(cfg.Printers)
	if err != nil {
		return fmt.Errorf("invalid printer configuration: %w", err)
	}

	client := &http.Client{}
	acquirer := core.NewAcquirer(client, core.AcquirerConfig{
		Credential:       cfg.Source.APIKey,
		CredentialHeader: cfg.Source.CredentialHeader,
		CredentialSource: config.CredentialEnvVar,
		Matcher:          credentialMatcher(cfg.Source),
		MaxBytes:         cfg.Source.MaxBytes,
		Timeout:          cfg.Source.FetchTimeout,
	}, logger)
	dispatcher := core.NewDispatcher(registry, acquirer, client, core.DispatcherConfig{
		Timeout:    cfg.Printers.DispatchTimeout,
		DevicePath: cfg.Printers.DevicePath,
	}, logger)

	if cfg.Source.APIKey == "" {
		logger.Warn("no content service credential set, credentialed label URLs will be rejected",
			"env", config.CredentialEnvVar)
	}

	router := api.NewRouter(api.RouterDeps{
		Dispatcher: dispatcher,
		Registry:   registry,
		DevicePath: cfg.Printers.DevicePath,
		Logger:     logger,
	})
	server := api.NewServer(cfg.Server, router, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("labelrelay starting",
		"version", version,
		"port", cfg.Server.Port,
		"printers", registry.Len(),
		"dispatch_timeout", cfg.Printers.DispatchTimeout,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested")
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("labelrelay stopped")
	return nil
}

func loadConfig(path string, port int) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func buildRegistry(cfg config.PrintersConfig) (*core.Registry, error) {
	records := make([]core.PrinterRecord, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		records = append(records, core.PrinterRecord{
			Address:     d.Host,
			RoutingKeys: d.WorkCenters,
		})
	}
	return core.NewRegistry(records)
}

// credentialMatcher prefers an explicit host allow-list over the substring
// heuristic.
func credentialMatcher(cfg config.SourceConfig) core.CredentialMatcher {
	if len(cfg.CredentialHosts) > 0 {
		return core.HostAllowList(cfg.CredentialHosts...)
	}
	return core.SubstringMatcher(cfg.CredentialMatch)
}
