package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/skyrelay/skyrelay/internal/analytics"
	"github.com/skyrelay/skyrelay/internal/api"
	"github.com/skyrelay/skyrelay/internal/api/management"
	"github.com/skyrelay/skyrelay/internal/config"
	log "github.com/skyrelay/skyrelay/internal/logging"
	"github.com/skyrelay/skyrelay/internal/taillog"
	"github.com/skyrelay/skyrelay/internal/tunnel"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analytics service",
	Long: `Start the skyrelay analytics service.

The service migrates any legacy usage data, tails the proxy request log into
the analytics stores, starts the configured Cloudflare tunnels, and serves
the management API.`,
	Run: func(c *cobra.Command, args []string) {
		cfg, dataDir, err := loadConfig()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		if servePort != 0 && servePort != config.DefaultPort {
			cfg.Port = servePort
		}
		if err := log.ConfigureLogOutput(dataDir, cfg.LoggingToFile); err != nil {
			log.Fatalf("Failed to configure log output: %v", err)
		}

		runServe(cfg, dataDir)
	},
}

func runServe(cfg *config.Config, dataDir string) {
	aggStore := analytics.NewAggregateStore(dataDir)
	histStore := analytics.NewHistoryStore(dataDir)

	// Migration must complete before the first event is folded.
	analytics.Migrate(aggStore, histStore)

	ingestor := analytics.NewIngestor(aggStore, histStore)
	query := analytics.NewQueryService(aggStore, histStore)
	handler := management.NewHandler(ingestor, query, aggStore, cfg.ManagementKey)
	server := api.NewServer(handler, cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	if cfg.RequestLog != "" {
		tailer := taillog.NewTailer(cfg.RequestLog)
		group.Go(func() error { return tailer.Run(ctx) })
		group.Go(func() error {
			ingestor.Run(ctx, tailer.Events())
			return nil
		})
		log.Infof("serve: tailing request log %s", cfg.RequestLog)
	} else {
		log.Warnf("serve: no request log configured, running query-only")
	}

	if len(cfg.Tunnels) > 0 {
		manager := tunnel.NewManager(func(st tunnel.Status) {
			log.Infof("tunnel %s: %s %s %s", st.ID, st.State, st.Message, st.URL)
		})
		for _, tcfg := range cfg.Tunnels {
			manager.Connect(ctx, tcfg)
		}
		defer manager.DisconnectAll()
	}

	group.Go(func() error { return server.Run(ctx) })

	if err := group.Wait(); err != nil {
		log.Errorf("serve: %v", err)
	}
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultPort, "management API port")
	rootCmd.AddCommand(serveCmd)
}
