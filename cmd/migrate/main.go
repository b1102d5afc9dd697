package main

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/infrastructure/migration"
	"github.com/erp/connector/migrations"
	_ "github.com/lib/pq"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const defaultMigrationsPath = "migrations"

func main() {
	app := &cli.App{
		Name:  "migrate",
		Usage: "Connector database migration tool",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a config file (default: config.toml search path)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
				Value: "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: withMigrator(func(c *cli.Context, m *migration.Migrator, _ *zap.Logger) error {
					return m.Up()
				}),
			},
			{
				Name:  "down",
				Usage: "Roll back all migrations",
				Action: withMigrator(func(c *cli.Context, m *migration.Migrator, _ *zap.Logger) error {
					return m.Down()
				}),
			},
			{
				Name:      "step",
				Usage:     "Apply n migrations (positive=up, negative=down)",
				ArgsUsage: "<n>",
				Action: withMigrator(func(c *cli.Context, m *migration.Migrator, _ *zap.Logger) error {
					n, err := strconv.Atoi(c.Args().First())
					if err != nil {
						return fmt.Errorf("invalid step count %q", c.Args().First())
					}
					return m.Steps(n)
				}),
			},
			{
				Name:      "goto",
				Usage:     "Migrate to a specific version",
				ArgsUsage: "<version>",
				Action: withMigrator(func(c *cli.Context, m *migration.Migrator, _ *zap.Logger) error {
					version, err := strconv.ParseUint(c.Args().First(), 10, 32)
					if err != nil {
						return fmt.Errorf("invalid version %q", c.Args().First())
					}
					return m.GoTo(uint(version))
				}),
			},
			{
				Name:  "version",
				Usage: "Show current migration version",
				Action: withMigrator(func(c *cli.Context, m *migration.Migrator, log *zap.Logger) error {
					version, dirty, err := m.Version()
					if err != nil {
						return err
					}
					if version == 0 {
						log.Info("No migrations applied")
						return nil
					}
					log.Info("Current migration version",
						zap.Uint("version", version),
						zap.Bool("dirty", dirty),
					)
					return nil
				}),
			},
			{
				Name:      "force",
				Usage:     "Force set migration version (use with caution)",
				ArgsUsage: "<version>",
				Action: withMigrator(func(c *cli.Context, m *migration.Migrator, log *zap.Logger) error {
					version, err := strconv.Atoi(c.Args().First())
					if err != nil {
						return fmt.Errorf("invalid version %q", c.Args().First())
					}
					log.Warn("Forcing migration version", zap.Int("version", version))
					return m.Force(version)
				}),
			},
			{
				Name:      "create",
				Usage:     "Create a new migration file pair",
				ArgsUsage: "<name> [description]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Migrations directory",
						Value: defaultMigrationsPath,
					},
				},
				Action: func(c *cli.Context) error {
					log, err := newLogger(c)
					if err != nil {
						return err
					}
					defer func() { _ = logger.Sync(log) }()

					if c.NArg() < 1 {
						return cli.Exit("migration name required", 1)
					}
					mf, err := migration.CreateMigration(c.String("dir"), c.Args().Get(0), c.Args().Get(1))
					if err != nil {
						return err
					}
					log.Info("Migration created",
						zap.String("version", mf.Version),
						zap.String("up_file", mf.UpPath),
						zap.String("down_file", mf.DownPath),
					)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List embedded migrations",
				Action: func(c *cli.Context) error {
					names, err := migration.ListMigrations(migrations.FS)
					if err != nil {
						return err
					}
					for _, name := range names {
						fmt.Fprintln(c.App.Writer, "  -", name)
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      c.String("log-level"),
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
		Service:    "migrate",
	})
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// withMigrator opens the database and an embedded-source migrator around action
func withMigrator(action func(*cli.Context, *migration.Migrator, *zap.Logger) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		log, err := newLogger(c)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync(log) }()

		cfg, err := loadConfig(c)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		db, err := sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(c.Context); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}

		m, err := migration.New(db, migrations.FS, log)
		if err != nil {
			return err
		}
		defer m.Close()

		log.Info("Migration command started", zap.String("command", c.Command.Name))
		return action(c, m, log)
	}
}
