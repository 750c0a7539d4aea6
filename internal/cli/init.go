package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/imkarma/steward/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize steward in the current directory",
	Long:  "Creates a .steward/ directory with default config, docs storage, and database.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	stewardDir := stewardDirName
	docsDir := filepath.Join(stewardDir, "docs")

	// Check if already initialized.
	if _, err := os.Stat(stewardDir); err == nil {
		return fmt.Errorf("steward already initialized in this directory (.steward/ exists)")
	}

	// Create directories.
	if err := os.MkdirAll(docsDir, 0755); err != nil {
		return fmt.Errorf("create .steward/docs: %w", err)
	}

	// Write default config.
	cfgPath := filepath.Join(stewardDir, "config.yaml")
	cfg := config.DefaultConfig()
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	// Create database by opening store (migration runs automatically).
	dbPath := filepath.Join(stewardDir, "steward.db")
	s, err := openStore(dbPath)
	if err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	s.Close()

	fmt.Println("Initialized steward in .steward/")
	fmt.Println("")
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit .steward/config.yaml to add your workers")
	fmt.Println("  2. Run: steward submit \"your request\" --files a.go,b.go")
	fmt.Println("  3. Run: steward board")

	return nil
}
