// irrigationctl is the operator tool for the irrigation core.
//
// Usage:
//
//	irrigationctl seed [-fresh] [-users 3] [-readings 10] [-commands 3]
//	irrigationctl rebuild [-device dev-1234abcd] [-workers 4]
//
// Both commands open the database named by the configuration file
// (IRRIGATION_CONFIG, default configs/config.yaml). When the file does not
// exist the built-in defaults and IRRIGATION_* variables are used.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/Yogesh-MG/Iotfarming/internal/audit"
	"github.com/Yogesh-MG/Iotfarming/internal/device"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/config"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/database"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/logging"
	"github.com/Yogesh-MG/Iotfarming/internal/irrigation"
	"github.com/Yogesh-MG/Iotfarming/migrations"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: irrigationctl <seed|rebuild> [flags]")
	}

	if err := config.LoadEnvFile(".env"); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	env, err := openEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	switch args[0] {
	case "seed":
		return runSeed(ctx, env, args[1:], out)
	case "rebuild":
		return runRebuild(ctx, env, args[1:], out)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// loadConfig reads the configuration file, falling back to defaults when
// it does not exist. Validation is skipped for the fallback because the
// tool never serves HTTP and needs no JWT secret.
func loadConfig() (*config.Config, error) {
	path := defaultConfigPath
	if p := os.Getenv(config.EnvPrefix + "CONFIG"); p != "" {
		path = p
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// env bundles what every subcommand needs.
type env struct {
	db       *database.DB
	log      *logging.Logger
	registry *device.Registry
	service  *irrigation.Service
	recorder *audit.Recorder
}

func openEnv(ctx context.Context, cfg *config.Config) (*env, error) {
	log := logging.New(cfg.Logging, "cli")

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)

	service, err := irrigation.NewService(irrigation.NewSQLiteStore(db.DB), registry, irrigation.OptionsFromConfig(cfg.Irrigation))
	if err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("creating irrigation service: %w", err)
	}
	service.SetLogger(log)

	recorder := audit.NewRecorder(audit.NewSQLiteRepository(db.DB))
	recorder.SetLogger(log)
	service.AddNotifier(recorder)

	return &env{db: db, log: log, registry: registry, service: service, recorder: recorder}, nil
}

func (e *env) Close() {
	if err := e.db.Close(); err != nil {
		e.log.Error("error closing database", "error", err)
	}
}
