package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trailtrack/licensed/internal/config"
	"github.com/trailtrack/licensed/internal/metrics"
	"github.com/trailtrack/licensed/internal/server"
)

func newServeCmd() *cobra.Command {
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the licensed API server",
		Long:  "Start the HTTP server that answers license activation, validation, and deactivation requests and hosts the admin API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging, os.Stderr, dev)

	// 1. Open the database and apply migrations
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	logger.Info("database ready", "driver", st.Driver())

	// 2. Wire services and metrics
	reg := metrics.NewRegistry()
	svc := newServices(cfg, st, reg, logger)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret is not set; admin sessions end when the server restarts")
	}
	if cfg.Payment.Provider == "stripe" {
		logger.Info("payment confirmation enabled", "provider", "stripe")
	}

	// 3. First run: nobody can log in until an admin exists
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	hasAdmin, err := st.HasAnyAdmin(ctx)
	cancel()
	if err != nil {
		logger.Warn("failed to check for admin", "error", err)
	} else if !hasAdmin {
		logger.Warn("no admin account found - run: licensed admin create")
	}

	// 4. Build and start HTTP server
	maxBody, _ := config.ParseSize(cfg.Server.MaxBodySize) // validated by config.Load
	srvCfg := server.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ShutdownTimeout:   config.Duration(cfg.Server.ShutdownTimeout, 30*time.Second),
		CORSOrigins:       cfg.Server.CORSOrigins,
		MaxBodySize:       maxBody,
		RateLimit:         cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Version:           versionString(),
	}

	srv := server.New(srvCfg, st, server.Services{
		Licenses:  svc.licenses,
		Purchases: svc.purchases,
		Auth:      svc.auth,
	}, reg, logger)

	fmt.Printf("→ licensed %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Metrics:    http://%s:%d/metrics\n", srvCfg.Host, srvCfg.Port)
	fmt.Println()

	return srv.ListenAndServe()
}
