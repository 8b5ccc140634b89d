package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/marketledger-backend/pkg/config"
	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

// offline commands only touch the migrations directory.
var offline = map[string]func(context.Context, *logger.Logger, options) error{
	"create": func(ctx context.Context, logg *logger.Logger, opts options) error {
		if opts.name == "" {
			return fmt.Errorf("-name is required for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "path", path), "migration created")
		return nil
	},
	"validate": func(ctx context.Context, logg *logger.Logger, opts options) error {
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		logg.Info(ctx, "migrations valid")
		return nil
	},
}

var online = map[string]func(context.Context, *migrate.Runner, options) error{
	"up":   func(ctx context.Context, r *migrate.Runner, _ options) error { return r.Up(ctx) },
	"down": func(ctx context.Context, r *migrate.Runner, _ options) error { return r.Down(ctx) },
	"status": func(ctx context.Context, r *migrate.Runner, _ options) error {
		return r.Status(ctx)
	},
	"version": func(ctx context.Context, r *migrate.Runner, opts options) error {
		if opts.version == "" {
			return fmt.Errorf("-version is required for version")
		}
		return r.MigrateTo(ctx, opts.version)
	},
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	var opts options
	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name, used by create")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS, used by version")
	flag.Parse()

	cfg, err := config.Load()
	exitOn(context.Background(), logg, "load config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": opts.dir,
	})

	if run, ok := offline[*cmd]; ok {
		exitOn(ctx, logg, *cmd, run(ctx, logg, opts))
		return
	}
	run, ok := online[*cmd]
	if !ok {
		exitOn(ctx, logg, "parse flags", fmt.Errorf("unknown -cmd %q", *cmd))
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(ctx, logg, "connect database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	exitOn(ctx, logg, "extract sql.DB", err)

	runner, err := migrate.NewRunner(sqlDB, opts.dir, logg)
	exitOn(ctx, logg, "init migrations", err)

	if err := run(ctx, runner, opts); err != nil {
		_ = dbClient.Close()
		exitOn(ctx, logg, *cmd, err)
	}
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "migrate failed: "+step, err)
	os.Exit(1)
}
