package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrator accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an administrator account",
	Args:  cobra.NoArgs,
	RunE:  runAdminCreate,
}

func init() {
	adminCreateCmd.Flags().String("name", "", "display name")
	adminCreateCmd.Flags().String("email", "", "login email")
	adminCreateCmd.Flags().String("password", "", "initial password")
	adminCmd.AddCommand(adminCreateCmd)
}

func runAdminCreate(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	if email == "" || password == "" {
		return errors.New("--email and --password are required")
	}

	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pg.Close()

	pool := pg.PoolHandle()
	staffService := service.NewStaffService(*cfg, service.StaffDependencies{
		StaffRepo: repository.NewStaffRepository(pool),
		UserRepo:  repository.NewUserRepository(pool),
	})
	admin, err := staffService.BootstrapAdmin(cmd.Context(), name, email, password)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	logger.Info("administrator created", zap.String("staff_id", admin.ID), zap.String("email", admin.Email))
	return nil
}
