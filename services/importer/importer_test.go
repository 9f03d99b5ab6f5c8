package importer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insoln/slack-mm2/db"
	"github.com/insoln/slack-mm2/models"
	"github.com/insoln/slack-mm2/services/entity"
	"github.com/insoln/slack-mm2/services/slack"
	"github.com/insoln/slack-mm2/services/slackclient"
	"github.com/insoln/slack-mm2/testhelper"
)

type recordingExporter struct {
	anchor *models.ImportJob
	err    error
}

func (r *recordingExporter) Run(_ context.Context, anchor *models.ImportJob) error {
	r.anchor = anchor
	return r.err
}

// buildRichExport extends the stock posts fixture with a thread reply, a
// bot-authored post and a Slack-hosted file upload.
func buildRichExport(t *testing.T) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "export.zip")
	builder := slack.ExportWithPosts().
		AddPost("general", slack.SlackPost{
			User:      "U002",
			Text:      "Thanks, happy to be here!",
			TimeStamp: "1704067320.000400",
			ThreadTS:  "1704067260.000200",
			Type:      "message",
		}).
		AddPost("random", slack.SlackPost{
			BotId:       "B042",
			BotUsername: "deploybot",
			Text:        "build 118 deployed",
			TimeStamp:   "1704070860.000400",
			Type:        "message",
		}).
		AddPost("random", slack.SlackPost{
			User:      "U001",
			Text:      "meeting notes attached",
			TimeStamp: "1704070920.000500",
			Type:      "message",
			Upload:    true,
			Files: []*slack.SlackFile{
				{
					Id:         "F001",
					Name:       "notes.txt",
					Size:       11,
					URLPrivate: "https://files.slack.com/files-pri/T001-F001/notes.txt",
				},
			},
		}).
		AddUpload("F001", "notes.txt", []byte("hello world"))
	require.NoError(t, builder.Build(zipPath))
	return zipPath
}

func TestImportPipeline(t *testing.T) {
	conn := testhelper.SetupDB(t)
	ctx := context.Background()
	logger := discardLogger()

	jobs := db.NewPostgresJobsRepository(conn, "public")
	entities := db.NewPostgresEntitiesRepository(conn, "public")
	relations := db.NewPostgresRelationsRepository(conn, "public")
	entSvc := entity.NewService(entities, relations, logger)
	slackCl := slackclient.NewClient("", 0, nil, logger)
	svc := NewService(jobs, entSvc, slackCl, nil, logger)

	zipPath := buildRichExport(t)

	job, err := svc.Begin(ctx, zipPath)
	require.NoError(t, err)
	require.NoError(t, svc.Run(ctx, job))

	t.Run("The job finishes with full progress meta", func(t *testing.T) {
		stored, err := jobs.GetByID(ctx, job.ID)
		require.NoError(t, err)
		finished, ok := stored.Get()
		require.True(t, ok)

		assert.Equal(t, models.JobStatusSuccess, finished.Status)
		assert.Equal(t, models.StageDone, finished.CurrentStage)
		assert.Empty(t, finished.ErrorMessage)
		assert.Equal(t, zipPath, finished.Meta.GetString(models.MetaZipPath))
		assert.NotContains(t, finished.Meta, models.MetaExtractDir)

		// users.json, channels.json and one day file per channel folder.
		assert.Equal(t, int64(4), finished.Meta.GetInt(models.MetaJSONFilesTotal))
		assert.Equal(t, int64(4), finished.Meta.GetInt(models.MetaJSONFilesProcessed))
		assert.Equal(t, int64(6), finished.Meta.GetInt(models.MetaMessagesProcessed))
		assert.Equal(t, int64(1), finished.Meta.GetInt(models.MetaReactionsProcessed))
		assert.Equal(t, int64(1), finished.Meta.GetInt(models.MetaAttachmentsProcessed))
		assert.Equal(t, int64(0), finished.Meta.GetInt(models.MetaEmojisProcessed))

		totals, ok := finished.Meta[models.MetaTotals].(map[string]any)
		require.True(t, ok)
		assert.EqualValues(t, 6, totals["messages"])
		assert.EqualValues(t, 1, totals["reactions"])
		assert.EqualValues(t, 1, totals["attachments"])
		assert.EqualValues(t, 0, totals["emojis"])

		stages, ok := finished.Meta[models.MetaStages].([]any)
		require.True(t, ok)
		require.Len(t, stages, len(models.StageNames()))
		assert.Equal(t, "extracting", stages[0])
		assert.Equal(t, "done", stages[len(stages)-1])
	})

	t.Run("Users and channels become global entities", func(t *testing.T) {
		john, err := entSvc.Resolve(ctx, models.EntityTypeUser, "U001", nil)
		require.NoError(t, err)
		require.NotNil(t, john)
		assert.Nil(t, john.JobID)
		assert.Equal(t, "john.doe", john.RawData.GetString("name"))

		general, err := entSvc.ResolveChannelByName(ctx, "general")
		require.NoError(t, err)
		require.NotNil(t, general)
		assert.Equal(t, "C001", general.SlackID)
		assert.Nil(t, general.JobID)

		members, err := relations.ListSourceEntities(ctx, general.ID, models.RelationMemberOf)
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, "U001", members[0].SlackID)
		assert.Equal(t, "U002", members[1].SlackID)
	})

	t.Run("Messages carry their channel and author relations", func(t *testing.T) {
		counts, err := entities.CountByTypeForJob(ctx, job.ID, false)
		require.NoError(t, err)
		assert.Equal(t, int64(6), counts[models.EntityTypeMessage])
		assert.Equal(t, int64(1), counts[models.EntityTypeReaction])
		assert.Equal(t, int64(1), counts[models.EntityTypeAttachment])

		hello, err := entSvc.Resolve(ctx, models.EntityTypeMessage, "1704067200.000100", &job.ID)
		require.NoError(t, err)
		require.NotNil(t, hello)
		assert.Equal(t, "C001", hello.RawData.GetString("channel_id"))

		channel, err := relations.GetTargetEntity(ctx, hello.ID, models.RelationPostedIn, models.EntityTypeChannel)
		require.NoError(t, err)
		row, ok := channel.Get()
		require.True(t, ok)
		assert.Equal(t, "C001", row.SlackID)

		author, err := relations.GetSourceEntity(ctx, hello.ID, models.RelationPostedBy, models.EntityTypeUser)
		require.NoError(t, err)
		row, ok = author.Get()
		require.True(t, ok)
		assert.Equal(t, "U001", row.SlackID)
	})

	t.Run("Bot authors get a synthetic user entity", func(t *testing.T) {
		bot, err := entSvc.Resolve(ctx, models.EntityTypeUser, "B042", nil)
		require.NoError(t, err)
		require.NotNil(t, bot)
		assert.Nil(t, bot.JobID)
		assert.Equal(t, true, bot.RawData["is_bot"])
		assert.Equal(t, "deploybot", bot.RawData.GetString("first_name"))

		deploy, err := entSvc.Resolve(ctx, models.EntityTypeMessage, "1704070860.000400", &job.ID)
		require.NoError(t, err)
		require.NotNil(t, deploy)

		author, err := relations.GetSourceEntity(ctx, deploy.ID, models.RelationPostedBy, models.EntityTypeUser)
		require.NoError(t, err)
		row, ok := author.Get()
		require.True(t, ok)
		assert.Equal(t, "B042", row.SlackID)
	})

	t.Run("Thread replies link to their root", func(t *testing.T) {
		reply, err := entSvc.Resolve(ctx, models.EntityTypeMessage, "1704067320.000400", &job.ID)
		require.NoError(t, err)
		require.NotNil(t, reply)

		root, err := relations.GetTargetEntity(ctx, reply.ID, models.RelationThreadReply, models.EntityTypeMessage)
		require.NoError(t, err)
		row, ok := root.Get()
		require.True(t, ok)
		assert.Equal(t, "1704067260.000200", row.SlackID)
	})

	t.Run("Reactions link the reacting user and the message", func(t *testing.T) {
		reaction, err := entSvc.Resolve(ctx, models.EntityTypeReaction, "1704067260.000200_wave_U001", &job.ID)
		require.NoError(t, err)
		require.NotNil(t, reaction)
		assert.Equal(t, "wave", reaction.RawData.GetString("emoji_name"))
		assert.Equal(t, "1704067260.000200", reaction.RawData.GetString("message_ts"))
		assert.Equal(t, "U001", reaction.RawData.GetString("user"))

		reactor, err := relations.GetSourceEntity(ctx, reaction.ID, models.RelationReactedBy, models.EntityTypeUser)
		require.NoError(t, err)
		row, ok := reactor.Get()
		require.True(t, ok)
		assert.Equal(t, "U001", row.SlackID)

		target, err := relations.GetTargetEntity(ctx, reaction.ID, models.RelationReactedTo, models.EntityTypeMessage)
		require.NoError(t, err)
		row, ok = target.Get()
		require.True(t, ok)
		assert.Equal(t, "1704067260.000200", row.SlackID)

		// Without a Slack token no emoji list is available, so the reaction
		// has no custom emoji edge.
		emoji, err := relations.GetTargetEntity(ctx, reaction.ID, models.RelationCustomEmojiUsed, models.EntityTypeCustomEmoji)
		require.NoError(t, err)
		assert.True(t, emoji.IsAbsent())
	})

	t.Run("Slack-hosted files become attachments", func(t *testing.T) {
		file, err := entSvc.Resolve(ctx, models.EntityTypeAttachment, "F001", &job.ID)
		require.NoError(t, err)
		require.NotNil(t, file)
		assert.Equal(t, "notes.txt", file.RawData.GetString("name"))

		msg, err := relations.GetTargetEntity(ctx, file.ID, models.RelationAttachedTo, models.EntityTypeMessage)
		require.NoError(t, err)
		row, ok := msg.Get()
		require.True(t, ok)
		assert.Equal(t, "1704070920.000500", row.SlackID)
	})

	t.Run("Re-importing scopes new rows to the new job", func(t *testing.T) {
		second, err := svc.Begin(ctx, zipPath)
		require.NoError(t, err)
		require.NoError(t, svc.Run(ctx, second))

		counts, err := entities.CountByTypeForJob(ctx, second.ID, false)
		require.NoError(t, err)
		assert.Equal(t, int64(6), counts[models.EntityTypeMessage])
		assert.Equal(t, int64(1), counts[models.EntityTypeReaction])
		assert.Equal(t, int64(1), counts[models.EntityTypeAttachment])

		stats, err := entities.GetMappingStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.ByType["user"])
		assert.Equal(t, int64(2), stats.ByType["channel"])
		assert.Equal(t, int64(12), stats.ByType["message"])

		general, err := entSvc.ResolveChannelByName(ctx, "general")
		require.NoError(t, err)
		members, err := relations.ListSourceEntities(ctx, general.ID, models.RelationMemberOf)
		require.NoError(t, err)
		assert.Len(t, members, 2)
	})

	t.Run("The finished job is handed to the exporter", func(t *testing.T) {
		runner := &recordingExporter{}
		exporting := NewService(jobs, entSvc, slackCl, runner, logger)

		basicZip := filepath.Join(t.TempDir(), "basic.zip")
		require.NoError(t, slack.BasicExport().Build(basicZip))

		anchor, err := exporting.Begin(ctx, basicZip)
		require.NoError(t, err)
		require.NoError(t, exporting.Run(ctx, anchor))

		require.NotNil(t, runner.anchor)
		assert.Equal(t, anchor.ID, runner.anchor.ID)

		stored, err := jobs.GetByID(ctx, anchor.ID)
		require.NoError(t, err)
		finished, ok := stored.Get()
		require.True(t, ok)
		assert.Equal(t, models.JobStatusSuccess, finished.Status)
		assert.Equal(t, models.StageDone, finished.CurrentStage)
	})

	t.Run("An exporter failure marks the job failed", func(t *testing.T) {
		runner := &recordingExporter{err: errors.New("mattermost unreachable")}
		exporting := NewService(jobs, entSvc, slackCl, runner, logger)

		basicZip := filepath.Join(t.TempDir(), "basic.zip")
		require.NoError(t, slack.BasicExport().Build(basicZip))

		failing, err := exporting.Begin(ctx, basicZip)
		require.NoError(t, err)
		require.Error(t, exporting.Run(ctx, failing))

		stored, err := jobs.GetByID(ctx, failing.ID)
		require.NoError(t, err)
		failed, ok := stored.Get()
		require.True(t, ok)
		assert.Equal(t, models.JobStatusFailed, failed.Status)
		assert.Equal(t, models.StageExporting, failed.CurrentStage)
		assert.Contains(t, failed.ErrorMessage, "mattermost unreachable")
	})

	t.Run("A missing archive fails the job", func(t *testing.T) {
		broken, err := svc.Begin(ctx, filepath.Join(t.TempDir(), "missing.zip"))
		require.NoError(t, err)
		require.Error(t, svc.Run(ctx, broken))

		stored, err := jobs.GetByID(ctx, broken.ID)
		require.NoError(t, err)
		failed, ok := stored.Get()
		require.True(t, ok)
		assert.Equal(t, models.JobStatusFailed, failed.Status)
		assert.NotEmpty(t, failed.ErrorMessage)
	})
}
