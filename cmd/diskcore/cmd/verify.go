package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forensiccore/diskvault/internal/orchestration"
	"github.com/forensiccore/diskvault/internal/vault"
)

func init() {
	verifyCmd := &cobra.Command{
		Use:   "verify <image>",
		Short: "Validate an image's structural integrity",
		Args:  cobra.ExactArgs(1),
		RunE:  runVerify,
	}
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	v, err := orchestration.OpenVault(args[0], vault.Config{UseMmap: appConfig.DefaultUseMmap})
	if err != nil {
		return err
	}
	defer v.Close()

	report, err := orchestration.ValidateIntegrity(v)
	if err != nil {
		return err
	}

	fmt.Printf("vault: %s (%d bytes)\n", report.VaultType, report.VaultLength)
	fmt.Printf("zone table: %s (%d zones)\n", report.ZoneTable, report.ZoneCount)
	if report.Healthy() {
		fmt.Println("integrity: OK")
		return nil
	}

	fmt.Println("integrity: FAILED")
	for _, f := range report.ZoneFailures {
		fmt.Printf("  - %s\n", f)
	}
	return fmt.Errorf("integrity check failed: %d zone(s) violated bounds", len(report.ZoneFailures))
}
