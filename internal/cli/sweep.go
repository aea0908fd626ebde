package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Top up every active template, as the nightly job does",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	now, err := a.now()
	if err != nil {
		return err
	}
	report, err := a.sweep.Run(cmd.Context(), now)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "templates: %d, created: %d, failed: %d\n", report.Templates, report.Created, report.Failed)
	if report.Failed > 0 {
		return fmt.Errorf("%d templates failed, see log", report.Failed)
	}
	return nil
}
