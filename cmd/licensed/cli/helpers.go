package cli

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/trailtrack/licensed/internal/config"
	"github.com/trailtrack/licensed/internal/metrics"
	"github.com/trailtrack/licensed/internal/service"
	"github.com/trailtrack/licensed/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// LICENSED_DATA_DIR env var, or ~/.licensed as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("LICENSED_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".licensed")
}

// loadConfig decodes the effective configuration from the global viper.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// openStore opens the database named by cfg. An empty SQLite DSN puts the
// database file under the data directory.
func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(store.Options{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		DataDir:         resolveDataDir(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: config.Duration(cfg.Database.ConnMaxLifetime, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

// newLogger builds the process logger. dev forces debug level.
func newLogger(cfg config.LoggingConfig, w io.Writer, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// appServices holds the services shared by serve, mcp, and the management
// commands.
type appServices struct {
	licenses  *service.LicenseService
	purchases *service.PurchaseService
	auth      *service.AuthService
}

// newServices wires the services over st. reg may be nil.
func newServices(cfg *config.Config, st *store.Store, reg *metrics.Registry, logger *slog.Logger) appServices {
	opts := []service.Option{
		service.WithDefaultMaxActivations(cfg.Licensing.DefaultMaxActivations),
	}
	if reg != nil {
		opts = append(opts, service.WithRecorder(reg))
	}
	licenses := service.NewLicenseService(st, logger, opts...)

	var confirmer service.PaymentConfirmer
	if cfg.Payment.Provider == "stripe" {
		confirmer = service.NewStripeConfirmer(cfg.Payment.StripeSecretKey)
	}

	return appServices{
		licenses:  licenses,
		purchases: service.NewPurchaseService(st, licenses, confirmer, logger),
		auth:      service.NewAuthService(st, jwtSecret(cfg, logger), config.Duration(cfg.Auth.JWTExpiry, 0)),
	}
}

// openServices loads the configuration and opens the store for a one-shot
// management command. Service logs below warn are discarded to keep the
// command output readable. The caller closes the store.
func openServices() (appServices, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return appServices{}, nil, err
	}
	st, err := openStore(cfg)
	if err != nil {
		return appServices{}, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return newServices(cfg, st, nil, logger), st, nil
}

// jwtSecret returns the configured signing secret. Without one, a random
// secret is generated, so admin sessions do not survive a restart.
func jwtSecret(cfg *config.Config, logger *slog.Logger) string {
	if cfg.Auth.JWTSecret != "" {
		return cfg.Auth.JWTSecret
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("generate jwt secret: %v", err))
	}
	logger.Debug("auth.jwt_secret not set, using an ephemeral secret")
	return hex.EncodeToString(b)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
