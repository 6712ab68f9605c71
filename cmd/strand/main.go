package main

import (
	"os"

	"github.com/spf13/cobra"

	"strand/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "strand",
	Short: "Strand task runtime toolchain",
	Long:  `Strand is a cooperative task runtime; this tool benchmarks it, watches it live, and decodes its traces`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("config", "", "path to strand.toml (default: search upward from the working directory)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
