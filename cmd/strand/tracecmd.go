package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"strand/internal/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace <file>",
	Short: "Decode a binary trace dump",
	Long:  `Read a binary-format trace file produced by the runtime and print the events as text`,
	Args:  cobra.ExactArgs(1),
	RunE:  runTraceDecode,
}

func init() {
	traceCmd.Flags().String("kind", "", "only show events of this kind (spawn|poll|wake|park|unpark|steal|timer|done|fault|heartbeat)")
}

func runTraceDecode(cmd *cobra.Command, args []string) error {
	kindFilter, _ := cmd.Flags().GetString("kind")

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	dec := trace.NewDecoder(f)
	count := 0
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("decode event %d: %w", count, err)
		}
		count++
		if kindFilter != "" && ev.Kind.String() != kindFilter {
			continue
		}
		os.Stdout.Write(trace.FormatEvent(&ev, trace.FormatText))
	}
	fmt.Fprintf(os.Stderr, "%d events\n", count)
	return nil
}
