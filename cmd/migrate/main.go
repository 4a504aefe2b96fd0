package main

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/bluerp/bluecore/internal/infrastructure/config"
	"github.com/bluerp/bluecore/internal/infrastructure/database"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

const migrationsPathSuffix = "internal/infrastructure/database/migrations/postgres"

var envFlag string

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "PostgreSQL schema migration tool for BlueCore",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrate(func(m *migrate.Migrate) error {
			if err := m.Up(); err != nil {
				if errors.Is(err, migrate.ErrNoChange) {
					log.Println("No migrations to apply")
					return nil
				}
				return err
			}
			log.Println("Migrations applied")
			return nil
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Rollback migrations (default: 1)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) > 0 {
			var err error
			if steps, err = strconv.Atoi(args[0]); err != nil || steps < 1 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[0])
			}
		}
		return withMigrate(func(m *migrate.Migrate) error {
			if err := m.Steps(-steps); err != nil {
				if errors.Is(err, migrate.ErrNoChange) {
					log.Println("No migrations to rollback")
					return nil
				}
				return err
			}
			log.Printf("Rolled back %d migration(s)", steps)
			return nil
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current migration version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrate(func(m *migrate.Migrate) error {
			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				log.Println("No migrations applied yet")
				return nil
			}
			if err != nil {
				return err
			}
			if dirty {
				log.Printf("Current version: %d (dirty, last migration may have failed)", version)
			} else {
				log.Printf("Current version: %d", version)
			}
			return nil
		})
	},
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Force set migration version without running migrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("version must be an integer, got %q", args[0])
		}
		return withMigrate(func(m *migrate.Migrate) error {
			if err := m.Force(version); err != nil {
				return err
			}
			log.Printf("Forced version to %d", version)
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")
	rootCmd.AddCommand(upCmd, downCmd, versionCmd, forceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

// withMigrate connects to the configured database, builds a migrate
// instance over the migrations directory, and runs fn against it.
func withMigrate(fn func(*migrate.Migrate) error) error {
	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pg.Close()

	driver, err := database.NewMigrateDriver(pg.DB)
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	migrationsPath, err := config.ProjectPath(migrationsPathSuffix)
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer m.Close()

	return fn(m)
}
