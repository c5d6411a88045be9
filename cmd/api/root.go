package main

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"fleetops/internal/config"
	"fleetops/internal/database"
	"fleetops/internal/logger"
)

var (
	envFile    string // Path to the dotenv file
	configPath string // Path to the optional configuration file

	cfg config.Config

	rootCmd = &cobra.Command{
		Use:           "fleetops",
		Short:         "Fleet operations back office API",
		Long:          `fleetops serves the rider onboarding and access control API and its maintenance commands.`,
		Args:          cobra.OnlyValidArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			var err error
			if cfg, err = config.Load(envFile, configPath); err != nil {
				return err
			}
			return logger.Init(cfg.Log)
		},
	}
)

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "configs/.env", "dotenv file loaded before the environment")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional config file (yaml, json or toml)")
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		log.Error().Err(err).Msg("command failed")
	}
	return err
}

// openDatabase connects with the configured driver and applies migrations.
func openDatabase() (*gorm.DB, error) {
	db, err := database.NewConnection(cfg.DB)
	if err != nil {
		return nil, errors.Wrap(err, "database connection failed")
	}
	if err := database.Migrate(db); err != nil {
		return nil, errors.Wrap(err, "database migration failed")
	}
	log.Info().Str("driver", cfg.DB.Driver).Msg("connected to database")
	return db, nil
}
