package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/restable/restable/pkg/dialect"
	_ "github.com/restable/restable/pkg/dialect/mysql"
	_ "github.com/restable/restable/pkg/dialect/postgres"
	_ "github.com/restable/restable/pkg/dialect/sqlite"
	"github.com/restable/restable/pkg/engine"
	"github.com/restable/restable/pkg/idcodec"
	"github.com/restable/restable/pkg/metrics"
	"github.com/restable/restable/pkg/rest"
	"github.com/restable/restable/pkg/schema"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Starts a server that exposes the configured tables as REST resources`,
	Run:   runServer,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("database.driver", "d", "", "data source driver (postgres, mysql, sqlite)")
	f.StringP("database.dsn", "c", "", "data source connection string")
	f.StringP("server.listenAddr", "l", "", "server listen address")
	f.String("server.baseURL", "", "Base URL for API endpoints")
	f.String("id.key", "", "32-hex-digit AES key for id obfuscation")

	viper.BindPFlags(f)
	rootCmd.AddCommand(serveCmd)
}

func newLogger() *zap.Logger {
	if logLevel == "none" {
		return zap.NewNop()
	}
	zapCfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(logLevel); err == nil {
		zapCfg.Level = lvl
	}
	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}

func runServer(cmd *cobra.Command, args []string) {
	if cfg == nil {
		log.Fatal("Configuration not loaded")
	}

	logger := newLogger()
	defer logger.Sync()

	// flag overrides
	if v := viper.GetString("database.driver"); v != "" {
		cfg.Database.Driver = v
	}
	if v := viper.GetString("database.dsn"); v != "" {
		cfg.Database.DSN = v
	}
	if v := viper.GetString("server.listenAddr"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := viper.GetString("id.key"); v != "" {
		cfg.ID.Key = v
	}

	if cfg.Database.Driver == "" || cfg.Database.DSN == "" {
		log.Fatal("Data source driver and DSN required")
	}
	if len(cfg.Resources) == 0 {
		log.Fatal("No resources configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := dialect.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open data source: %v", err)
	}
	defer d.Close()

	resources := make([]rest.Resource, 0, len(cfg.Resources))
	for _, rc := range cfg.Resources {
		opts := engine.Options{
			Separator: cfg.ID.Separator,
			Schema: schema.BuildOptions{
				ExcludePrefix: rc.ExcludePrefix,
				IncludeFields: rc.Fields,
			},
			Logger: logger,
		}
		// One id codec per resource so equal keys in different tables still
		// obfuscate to different tokens.
		if cfg.ID.Key != "" {
			codec, err := idcodec.New(cfg.ID.Key, rc.Table, cfg.ID.MinLength, cfg.ID.StaticIDs)
			if err != nil {
				log.Fatalf("Invalid id configuration for %q: %v", rc.Table, err)
			}
			opts.IDCodec = codec
		}
		resources = append(resources, rest.Resource{Table: rc.Table, Options: opts})
	}

	server, err := rest.NewServer(ctx, d, resources, rest.Options{
		BaseURL: cfg.Server.BaseURL,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{Addr: cfg.Metrics.Addr})
	}

	// Handle graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Println("Shutting down server...")
		cancel()
	}()

	if err := server.Start(ctx, cfg.Server.ListenAddr); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	wg.Wait()
	log.Println("Server gracefully stopped")
}
