package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	extractCmd := &cobra.Command{
		Use:   "extract <image> [zone-index] <path> <out-file>",
		Short: "Extract a file from a zone's filesystem to a local path",
		Args:  cobra.RangeArgs(3, 4),
		RunE:  runExtract,
	}
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	zoneIndex, tail := splitZoneIndexAndPath(args[1 : len(args)-1])
	path := tail[0]
	outFile := args[len(args)-1]

	v, t, err := openTerritory(args[0], zoneIndex)
	if err != nil {
		return err
	}
	defer v.Close()

	data, err := t.Extract(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outFile, data, 0o644); err != nil {
		return err
	}

	fmt.Printf("extracted %d bytes to %s\n", len(data), outFile)
	return nil
}
