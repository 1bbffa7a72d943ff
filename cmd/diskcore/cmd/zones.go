package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forensiccore/diskvault/internal/orchestration"
	"github.com/forensiccore/diskvault/internal/vault"
	"github.com/forensiccore/diskvault/internal/zone"
)

func init() {
	zonesCmd := &cobra.Command{
		Use:   "zones <image>",
		Short: "Open an image and print its partition table",
		Args:  cobra.ExactArgs(1),
		RunE:  runZones,
	}
	rootCmd.AddCommand(zonesCmd)
}

func runZones(cmd *cobra.Command, args []string) error {
	v, err := orchestration.OpenVault(args[0], vault.Config{UseMmap: appConfig.DefaultUseMmap})
	if err != nil {
		return err
	}
	defer v.Close()

	s, err := v.Stream()
	if err != nil {
		return err
	}

	zt, err := zone.Parse(s, 512)
	if err != nil {
		return err
	}

	fmt.Printf("table: %s\n", zt.Identify())
	fmt.Printf("%-6s%-20s%-20s%-10s%-10s%s\n", "index", "offset", "length", "type", "hint", "name")
	for _, z := range zt.Zones() {
		fmt.Printf("%-6d%-20d%-20d%-10s%-10s%s\n", z.Index, z.Offset, z.Length, z.ZoneType, z.TerritoryHint, z.Name)
	}
	return nil
}
