package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/evehealth/eve-auth-service/internal/config"
	"github.com/evehealth/eve-auth-service/internal/database"
	"github.com/evehealth/eve-auth-service/internal/domain"
	"github.com/evehealth/eve-auth-service/internal/tools/common"
	"github.com/evehealth/eve-auth-service/internal/tools/ui"
)

type options struct {
	envFile string
	ci      bool
	timeout time.Duration
}

// schemaModels is the migration surface, kept in sync with database.Migrate.
var schemaModels = []any{
	&domain.AdminUser{},
	&domain.Doctor{},
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the admin roster schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "env file to load before reading configuration")
	root.PersistentFlags().BoolVar(&opts.ci, "ci", false, "print a machine-readable JSON result instead of the interactive UI")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-command timeout in ci mode")

	root.AddCommand(newUpCommand(opts))
	root.AddCommand(newStatusCommand(opts))
	root.AddCommand(newPlanCommand(opts))
	return root
}

func newUpCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "migrate up", "up", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				if err := database.Migrate(db.WithContext(ctx)); err != nil {
					return nil, err
				}
				return tableDetails(db, "present")
			})
			return err
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report which schema tables exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "migrate status", "status", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				var details []string
				for _, model := range schemaModels {
					state := "missing"
					if db.WithContext(ctx).Migrator().HasTable(model) {
						state = "present"
					}
					details = append(details, fmt.Sprintf("%T: %s", model, state))
				}
				return details, nil
			})
			return err
		},
	}
}

func newPlanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "List tables a migration would create",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "migrate plan", "plan", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				var details []string
				for _, model := range schemaModels {
					if !db.WithContext(ctx).Migrator().HasTable(model) {
						details = append(details, fmt.Sprintf("create %T", model))
					}
				}
				if len(details) == 0 {
					details = []string{"schema up to date"}
				}
				return details, nil
			})
			return err
		},
	}
}

func run(opts *options, title, verb string, action func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		defer cancel()
		details, err := action(ctx)
		common.PrintCIResult(err == nil, title, details, err)
		return details, err
	}
	return ui.Run(title, action)
}

func loadConfigDB(envFile string) (*config.Config, *gorm.DB, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func tableDetails(db *gorm.DB, state string) ([]string, error) {
	var details []string
	for _, model := range schemaModels {
		if !db.Migrator().HasTable(model) {
			return nil, fmt.Errorf("expected table for %T after migrate", model)
		}
		details = append(details, fmt.Sprintf("%T: %s", model, state))
	}
	return details, nil
}
