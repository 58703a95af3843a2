package cmd

import (
	"context"
	"fmt"

	"github.com/benasterisk/stemtube/internal/config"
	"github.com/benasterisk/stemtube/internal/database"
	"github.com/urfave/cli/v3"
)

func resetAdminCmd() *cli.Command {
	return &cli.Command{
		Name:  "reset-admin-password",
		Usage: "Generate a new password for the administrator account",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			db, err := database.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			users := database.NewUserStore(db)
			admin, err := users.GetByUsername(ctx, cfg.Auth.AdminUsername)
			if err != nil {
				return fmt.Errorf("administrator account does not exist yet; run `stemtube serve` once to create it")
			}

			password, err := database.GeneratePassword(12)
			if err != nil {
				return fmt.Errorf("generate password: %w", err)
			}
			if err := users.ChangePassword(ctx, admin.ID, password); err != nil {
				return fmt.Errorf("change password: %w", err)
			}

			fmt.Println("==================================================")
			fmt.Println("ADMINISTRATOR PASSWORD RESET")
			fmt.Printf("Username: %s\n", admin.Username)
			fmt.Printf("Password: %s\n", password)
			fmt.Println("Change this password after logging in.")
			fmt.Println("==================================================")
			return nil
		},
	}
}
