package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations for all three service stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// Each service owns its own store; each migration runs against the
		// matching pool only.
		targets := []struct {
			name string
			db   config.DatabaseConfig
			file string
		}{
			{"identity", cfg.Identity.MySQL, "001_identity.sql"},
			{"task", cfg.Task.MySQL, "002_task.sql"},
			{"file", cfg.File.MySQL, "003_file.sql"},
		}

		for _, t := range targets {
			pool, err := db.NewMySQL(t.db)
			if err != nil {
				return fmt.Errorf("open %s db: %w", t.name, err)
			}

			sqlPath := filepath.Join("migrations", t.file)
			sqlBytes, err := os.ReadFile(sqlPath)
			if err != nil {
				pool.Close()
				return fmt.Errorf("read migration file %s: %w", sqlPath, err)
			}

			if _, err := pool.Exec(string(sqlBytes)); err != nil {
				pool.Close()
				return fmt.Errorf("exec %s migration: %w", t.name, err)
			}
			pool.Close()

			fmt.Printf(">> %s migration complete\n", t.name)
		}
		return nil
	},
}
