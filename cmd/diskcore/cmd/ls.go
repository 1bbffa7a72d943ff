package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	lsCmd := &cobra.Command{
		Use:   "ls <image> [zone-index] <path>",
		Short: "List a directory inside a zone's filesystem",
		Args:  cobra.RangeArgs(2, 3),
		RunE:  runLs,
	}
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	zoneIndex, tail := splitZoneIndexAndPath(args[1:])
	path := tail[0]

	v, t, err := openTerritory(args[0], zoneIndex)
	if err != nil {
		return err
	}
	defer v.Close()

	dir, err := t.Navigate(path)
	if err != nil {
		return err
	}
	entries, err := dir.List()
	if err != nil {
		return err
	}

	fmt.Printf("%-10s%-12s%s\n", "type", "size", "name")
	for _, e := range entries {
		kind := "file"
		if e.IsDir {
			kind = "dir"
		}
		fmt.Printf("%-10s%-12d%s\n", kind, e.Size, e.Name)
	}
	return nil
}
