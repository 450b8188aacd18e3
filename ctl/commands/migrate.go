package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"mediaPipeline/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the postgres schema",
	Long: `migrate creates the pipelines, assets and audit log tables and their indexes.
Statements are idempotent, so running it against a migrated database is safe.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db, err := connectDB(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.Migrate(cmd.Context(), db); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Schema applied.")
	return nil
}
