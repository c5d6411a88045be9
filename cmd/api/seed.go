package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"fleetops/internal/rbac"
	"fleetops/internal/routes"
	"fleetops/internal/service"
)

func init() { //nolint: gochecknoinits
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "login email of the administrator (required)")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "initial password, at least 8 characters (required)")
	createAdminCmd.Flags().StringVar(&adminFirstName, "first-name", "Admin", "first name")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(seedPresetsCmd, createAdminCmd)
}

var (
	adminEmail     string
	adminPassword  string
	adminFirstName string

	seedPresetsCmd = &cobra.Command{
		Use:   "seed-presets",
		Short: "Create the preset roles that do not exist yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, closeDB, err := maintenanceServices()
			if err != nil {
				return err
			}
			defer closeDB()

			_, err = seedPresets(cmd.Context(), services)
			return err
		},
	}

	createAdminCmd = &cobra.Command{
		Use:   "create-admin",
		Short: "Seed the preset roles and create a Super Admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			services, closeDB, err := maintenanceServices()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := cmd.Context()
			if _, err := seedPresets(ctx, services); err != nil {
				return err
			}

			roles, err := services.Roles.ListRoles(ctx)
			if err != nil {
				return err
			}
			var superAdminID string
			for _, r := range roles {
				if r.Name == rbac.SuperAdminRole {
					superAdminID = r.ID
				}
			}
			if superAdminID == "" {
				return errors.New("super admin role is missing after seeding")
			}

			user, err := services.Users.CreateUser(ctx, nil, service.CreateUserRequest{
				Email:     adminEmail,
				Password:  adminPassword,
				FirstName: adminFirstName,
				RoleIDs:   []string{superAdminID},
			})
			if err != nil {
				return errors.Wrap(err, "failed to create administrator")
			}
			log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("administrator created")
			return nil
		},
	}
)

// maintenanceServices wires the services without outbound dependencies; the
// commands using it only touch roles and users.
func maintenanceServices() (*routes.Services, func(), error) {
	db, err := openDatabase()
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return routes.NewServices(routes.Infra{Config: cfg, DB: db}), closeDB, nil
}

func seedPresets(ctx context.Context, services *routes.Services) ([]service.PresetResult, error) {
	results, err := services.Roles.InitializePresets(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to seed preset roles")
	}
	for _, r := range results {
		log.Info().Str("preset", r.Key).Str("role", r.Name).Str("status", r.Status).Msg("preset role")
	}
	return results, nil
}
