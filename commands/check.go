package commands

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/insoln/slack-mm2/services/slack"
)

var CheckCmd = &cobra.Command{
	Use:     "check",
	Short:   "Checks the integrity of a Slack export archive.",
	Long:    "Parses a Slack export archive without importing it and reports users, channels, post volume and anything the import pipeline would skip.",
	Example: "  slack-mm2 check --file my_export.zip",
	Args:    cobra.NoArgs,
	RunE:    checkCmdF,
}

func init() {
	CheckCmd.Flags().StringP("file", "f", "", "the Slack export file to check")
	if err := CheckCmd.MarkFlagRequired("file"); err != nil {
		panic(err)
	}
	RootCmd.AddCommand(CheckCmd)
}

func checkCmdF(cmd *cobra.Command, args []string) error {
	zipPath, _ := cmd.Flags().GetString("file")

	// No database or server involved, so the command runs standalone.
	logger := newLogger("info")

	archive, closeArchive, err := slack.OpenArchive(zipPath, logger)
	if err != nil {
		return err
	}
	defer closeArchive()

	if err := archive.Precheck(); err != nil {
		return err
	}

	summary, err := archive.Check()
	if err != nil {
		return err
	}

	for _, warning := range summary.Warnings {
		logger.Warn(warning)
	}
	logger.WithFields(log.Fields{
		"users":          summary.Users,
		"bots":           summary.Bots,
		"deleted_users":  summary.DeletedUsers,
		"channels":       summary.Channels,
		"posts":          summary.Posts,
		"thread_replies": summary.ThreadReplies,
		"reactions":      summary.Reactions,
		"hosted_files":   summary.HostedFiles,
		"warnings":       len(summary.Warnings),
	}).Info("Archive check complete")
	return nil
}
