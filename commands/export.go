package commands

import (
	"github.com/spf13/cobra"
)

var ExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Exports every job waiting in the exporting stage to Mattermost.",
	Args:  cobra.NoArgs,
	RunE:  exportCmdF,
}

func init() {
	RootCmd.AddCommand(ExportCmd)
}

func exportCmdF(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orchestrator.Run(cmd.Context(), nil); err != nil {
		return err
	}
	a.logger.Info("Export finished")
	return nil
}
