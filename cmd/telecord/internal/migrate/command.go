package migrate

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tinyland-inc/telecord/cmd/telecord/internal"
	"github.com/tinyland-inc/telecord/pkg/channels"
	"github.com/tinyland-inc/telecord/pkg/reminders"
	"github.com/tinyland-inc/telecord/pkg/storage"
)

type Options struct {
	ConfigPath string
	DBPath     string
	DryRun     bool
}

func NewMigrateCommand() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		Example: `  telecord migrate
  telecord migrate --dry-run
  telecord migrate --db /var/lib/telecord/telecord.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.DBPath == "" {
				cfg, err := internal.LoadConfig(opts.ConfigPath)
				if err != nil {
					return err
				}
				opts.DBPath = cfg.DatabasePath()
			}
			return Run(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "",
		"Config file path (default: ~/.telecord/config.json)")
	cmd.Flags().StringVar(&opts.DBPath, "db", "",
		"Database path, overriding the config")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false,
		"Show which tables are missing without changing the database")

	return cmd
}

// Models is every table the bridge owns.
func Models() []any {
	return append(channels.Models(), reminders.Models()...)
}

// Run reports missing tables and, unless DryRun, migrates the schema.
func Run(out io.Writer, opts Options) error {
	db, err := storage.Open(opts.DBPath)
	if err != nil {
		return err
	}
	defer storage.Close(db)

	missing, err := missingTables(db, Models())
	if err != nil {
		return err
	}

	if opts.DryRun {
		if len(missing) == 0 {
			fmt.Fprintln(out, "Schema is up to date")
			return nil
		}
		fmt.Fprintln(out, "Tables to create:")
		for _, t := range missing {
			fmt.Fprintf(out, "  - %s\n", t)
		}
		return nil
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migrate db: %w", err)
	}
	fmt.Fprintf(out, "Database migrated: %s (%d new tables)\n", opts.DBPath, len(missing))
	return nil
}

func missingTables(db *gorm.DB, models []any) ([]string, error) {
	var missing []string
	for _, m := range models {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return nil, fmt.Errorf("parse model: %w", err)
		}
		if !db.Migrator().HasTable(m) {
			missing = append(missing, stmt.Schema.Table)
		}
	}
	return missing, nil
}
