package export

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/insoln/slack-mm2/models"
)

func TestSortChannelMessages(t *testing.T) {
	mkMsg := func(id int64, ts string) *models.Entity {
		return &models.Entity{ID: id, SlackID: ts}
	}

	t.Run("Roots come before replies regardless of ts", func(t *testing.T) {
		group := []*models.Entity{
			mkMsg(1, "1704067300.000100"),
			mkMsg(2, "1704067200.000100"),
			mkMsg(3, "1704067400.000100"),
			mkMsg(4, "1704067100.000100"),
		}
		replies := map[int64]struct{}{1: {}, 4: {}}

		sortChannelMessages(group, replies)

		ids := []int64{group[0].ID, group[1].ID, group[2].ID, group[3].ID}
		require.Equal(t, []int64{2, 3, 4, 1}, ids)
	})

	t.Run("All roots sort by ts alone", func(t *testing.T) {
		group := []*models.Entity{
			mkMsg(1, "1704067300.000300"),
			mkMsg(2, "1704067300.000100"),
			mkMsg(3, "1704067300.000200"),
		}

		sortChannelMessages(group, map[int64]struct{}{})

		require.Equal(t, "1704067300.000100", group[0].SlackID)
		require.Equal(t, "1704067300.000200", group[1].SlackID)
		require.Equal(t, "1704067300.000300", group[2].SlackID)
	})

	t.Run("Unparseable ts sinks to the end", func(t *testing.T) {
		group := []*models.Entity{
			mkMsg(1, "garbage"),
			mkMsg(2, "1704067200.000100"),
		}

		sortChannelMessages(group, map[int64]struct{}{})

		require.Equal(t, int64(2), group[0].ID)
		require.Equal(t, int64(1), group[1].ID)
	})
}

func TestSortByTS(t *testing.T) {
	rows := []*models.Entity{
		{ID: 1, SlackID: "1704067300.000100_wave_U001"},
		{ID: 2, SlackID: "1704067100.000100_fire_U002"},
		{ID: 3, SlackID: "1704067200.000100_wave_U001"},
	}

	sortByTS(rows)

	require.Equal(t, int64(2), rows[0].ID)
	require.Equal(t, int64(3), rows[1].ID)
	require.Equal(t, int64(1), rows[2].ID)
}
