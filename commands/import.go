package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/insoln/slack-mm2/services/importer"
)

var ImportCmd = &cobra.Command{
	Use:     "import",
	Short:   "Imports a Slack export archive into the entity store.",
	Example: "  slack-mm2 import --file my_export.zip --export",
	Args:    cobra.NoArgs,
	RunE:    importCmdF,
}

func init() {
	ImportCmd.Flags().StringP("file", "f", "", "the Slack export zip to import")
	ImportCmd.Flags().Bool("export", false, "run the export into Mattermost once the import finishes")
	if err := ImportCmd.MarkFlagRequired("file"); err != nil {
		panic(err)
	}
	RootCmd.AddCommand(ImportCmd)
}

func importCmdF(cmd *cobra.Command, args []string) error {
	zipPath, _ := cmd.Flags().GetString("file")
	runExport, _ := cmd.Flags().GetBool("export")
	if _, err := os.Stat(zipPath); err != nil {
		return err
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	imp := a.importer
	if !runExport {
		// Without --export the rows stay pending until a later export run.
		imp = importer.NewService(a.jobsRepo, a.entities, a.slack, nil, a.logger)
	}

	ctx := cmd.Context()
	job, err := imp.Begin(ctx, zipPath)
	if err != nil {
		return err
	}
	if err := imp.Run(ctx, job); err != nil {
		return err
	}
	a.logger.WithField("job_id", job.ID).Info("Import finished")
	return nil
}
