package export

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/insoln/slack-mm2/models"
	"github.com/insoln/slack-mm2/services/slack"
)

// exportMessagesForJob schedules a job's messages channel by channel:
// channels run concurrently, messages within a channel sequentially with
// roots before replies, so a reply finds its root already posted.
func (e *Exporters) exportMessagesForJob(ctx context.Context, run *Run, jobID int64) error {
	messages, err := e.entities.Entities().ListExportable(ctx, models.EntityTypeMessage, &jobID)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	ids := make([]int64, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	channelBySource, err := e.entities.Relations().TargetIDsBySource(ctx, ids, models.RelationPostedIn)
	if err != nil {
		return err
	}
	replies, err := e.entities.Relations().SourceIDSet(ctx, ids, models.RelationThreadReply)
	if err != nil {
		return err
	}

	// Messages without a posted_in edge share one catch-all group.
	groups := map[int64][]*models.Entity{}
	for _, m := range messages {
		channelID, ok := channelBySource[m.ID]
		if !ok {
			channelID = -1
		}
		groups[channelID] = append(groups[channelID], m)
	}
	for _, group := range groups {
		sortChannelMessages(group, replies)
	}

	concurrency := e.cfg.Export.ChannelConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	e.logger.Infof("Exporting %d messages across %d channels (concurrency %d)", len(messages), len(groups), concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			for _, msg := range group {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := e.ExportEntity(gctx, run, msg); err != nil {
					e.logger.WithError(err).Errorf("Failed to record message export outcome for %s", msg.SlackID)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// sortChannelMessages orders one channel's batch roots first, then by ts.
func sortChannelMessages(group []*models.Entity, replies map[int64]struct{}) {
	sort.SliceStable(group, func(i, j int) bool {
		_, iReply := replies[group[i].ID]
		_, jReply := replies[group[j].ID]
		if iReply != jReply {
			return !iReply
		}
		return slack.ParseTS(group[i].SlackID) < slack.ParseTS(group[j].SlackID)
	})
}

// sortByTS orders rows by the ts prefix of their slack_id. Reaction ids are
// "<ts>_<emoji>_<user>", so this lands them in message order.
func sortByTS(rows []*models.Entity) {
	sort.SliceStable(rows, func(i, j int) bool {
		return slack.ParseTS(rows[i].SlackID) < slack.ParseTS(rows[j].SlackID)
	})
}
