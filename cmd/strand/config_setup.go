package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"strand/internal/config"
)

// loadConfig resolves the effective configuration: the --config flag wins,
// otherwise strand.toml is searched upward from the working directory, and
// defaults apply when no file exists.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	if path != "" {
		return config.Load(path)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return config.Config{}, err
	}
	found, ok, err := config.Find(cwd)
	if err != nil {
		return config.Config{}, err
	}
	if !ok {
		return config.Default(), nil
	}
	return config.Load(found)
}
