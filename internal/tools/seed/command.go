package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/evehealth/eve-auth-service/internal/config"
	"github.com/evehealth/eve-auth-service/internal/database"
	"github.com/evehealth/eve-auth-service/internal/domain"
	"github.com/evehealth/eve-auth-service/internal/repository"
	"github.com/evehealth/eve-auth-service/internal/tools/common"
	"github.com/evehealth/eve-auth-service/internal/tools/ui"
)

type options struct {
	envFile    string
	ci         bool
	timeout    time.Duration
	adminEmail string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "seed",
		Short:         "Seed the admin roster",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "env file to load before reading configuration")
	root.PersistentFlags().BoolVar(&opts.ci, "ci", false, "print a machine-readable JSON result instead of the interactive UI")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-command timeout in ci mode")

	root.AddCommand(newApplyCommand(opts))
	root.AddCommand(newDryRunCommand(opts))
	root.AddCommand(newVerifyAdminCommand(opts))
	return root
}

func newApplyCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create the bootstrap admin if the roster has none",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "seed apply", "apply", func(ctx context.Context) ([]string, error) {
				db, err := openDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				report, err := database.SeedSync(ctx, db, opts.adminEmail)
				if err != nil {
					return nil, err
				}
				if report.Noop {
					return []string{"roster already has an admin, nothing to do"}, nil
				}
				return []string{fmt.Sprintf("created %d admin(s)", report.CreatedAdmins)}, nil
			})
			return err
		},
	}
	cmd.Flags().StringVar(&opts.adminEmail, "email", "", "email for the bootstrap admin")
	return cmd
}

func newDryRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run",
		Short: "Report what a seed run would change",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "seed dry-run", "dry-run", func(ctx context.Context) ([]string, error) {
				db, err := openDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				count, err := repository.NewAdminUserRepository(db).CountByRole(ctx, domain.RoleAdmin)
				if err != nil {
					return nil, err
				}
				if count > 0 {
					return []string{"roster already has an admin, apply would be a no-op"}, nil
				}
				return []string{"apply would create 1 bootstrap admin"}, nil
			})
			return err
		},
	}
}

func newVerifyAdminCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-admin",
		Short: "Reactivate a roster entry by email",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "seed verify-admin", "verify-admin", func(ctx context.Context) ([]string, error) {
				db, err := openDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				if err := database.ActivateAdminEmail(ctx, db, opts.adminEmail); err != nil {
					return nil, err
				}
				return []string{fmt.Sprintf("activated %s", opts.adminEmail)}, nil
			})
			return err
		},
	}
	cmd.Flags().StringVar(&opts.adminEmail, "email", "", "roster entry email to activate")
	return cmd
}

func run(opts *options, title, verb string, action func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		timeout := opts.timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		details, err := action(ctx)
		common.PrintCIResult(err == nil, title, details, err)
		return details, err
	}
	return ui.Run(title, action)
}

func openDB(envFile string) (*gorm.DB, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return database.Open(cfg)
}
