package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forensiccore/diskvault/internal/orchestration"
	"github.com/forensiccore/diskvault/internal/vault"
)

func init() {
	identifyCmd := &cobra.Command{
		Use:   "identify <image>",
		Short: "Detect an image's container format and print its identity",
		Args:  cobra.ExactArgs(1),
		RunE:  runIdentify,
	}
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(cmd *cobra.Command, args []string) error {
	v, err := orchestration.OpenVault(args[0], vault.Config{UseMmap: appConfig.DefaultUseMmap})
	if err != nil {
		return err
	}
	defer v.Close()

	fmt.Printf("%s\t%d bytes\n", v.Identify(), v.Length())
	return nil
}
