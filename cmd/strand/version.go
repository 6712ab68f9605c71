package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"strand/internal/version"
)

var (
	versionShowHash bool
	versionShowDate bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&versionShowHash, "hash", false, "include git commit hash")
	versionCmd.Flags().BoolVar(&versionShowDate, "date", false, "include build timestamp")
}

func runVersion(cmd *cobra.Command, args []string) error {
	fmt.Printf("strand %s\n", version.Version)
	if versionShowHash && version.GitCommit != "" {
		fmt.Printf("commit: %s\n", version.GitCommit)
	}
	if versionShowDate && version.BuildDate != "" {
		fmt.Printf("built:  %s\n", version.BuildDate)
	}
	return nil
}
