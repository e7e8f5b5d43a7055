package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/jobsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase creates the config file when missing, initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) (err error) {
	if r.configPath != "" {
		if _, statErr := os.Stat(r.configPath); statErr != nil {
			r.logger.Info("config file not found, creating from template", "path", r.configPath)
			if err := shared.CreateConfigFile(r.configPath); err != nil {
				r.logger.Warn("failed to create config file, using defaults", "error", err)
			} else {
				r.logger.Info("config file created", "path", r.configPath)
				if config, err := shared.LoadConfig(r.configPath); err != nil {
					r.logger.Warn("failed to load created config, using defaults", "error", err)
				} else {
					r.config = config
				}
			}
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	d, err := r.open()
	if err != nil {
		return err
	}
	defer closeWith(d, &err)

	version, err := shared.CurrentVersion(d.db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	purged, err := d.store.Purge()
	if err != nil {
		return fmt.Errorf("failed to purge expired transients: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s (schema version %d, %d expired transient(s) purged)\n", r.config.Database.Path, version, purged)
}
