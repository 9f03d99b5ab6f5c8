package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insoln/slack-mm2/db"
	"github.com/insoln/slack-mm2/models"
)

func TestStatsPayload(t *testing.T) {
	stats := &db.MappingStats{
		Total: 7,
		ByType: map[models.EntityType]int64{
			models.EntityTypeUser:    3,
			models.EntityTypeMessage: 4,
		},
		ByStatus: map[models.MappingStatus]int64{
			models.MappingStatusSuccess: 5,
			models.MappingStatusFailed:  2,
		},
		Matrix: map[models.EntityType]map[models.MappingStatus]int64{
			models.EntityTypeUser: {
				models.MappingStatusSuccess: 3,
			},
			models.EntityTypeMessage: {
				models.MappingStatusSuccess: 2,
				models.MappingStatusFailed:  2,
			},
		},
	}

	payload := statsPayload(stats)

	t.Run("Types are sorted", func(t *testing.T) {
		assert.Equal(t, []string{"message", "user"}, payload["types"])
	})

	t.Run("Statuses keep their display order", func(t *testing.T) {
		assert.Equal(t, []string{"pending", "skipped", "failed", "success"}, payload["statuses"])
	})

	t.Run("The matrix is zero filled", func(t *testing.T) {
		matrix, ok := payload["matrix"].(map[string]map[string]int64)
		require.True(t, ok)

		assert.Equal(t, map[string]int64{
			"pending": 0, "skipped": 0, "failed": 0, "success": 3,
		}, matrix["user"])
		assert.Equal(t, map[string]int64{
			"pending": 0, "skipped": 0, "failed": 2, "success": 2,
		}, matrix["message"])
	})

	t.Run("The totals row sums every column", func(t *testing.T) {
		assert.Equal(t, map[string]int64{
			"pending": 0, "skipped": 0, "failed": 2, "success": 5,
		}, payload["totals_row"])
	})

	t.Run("Counts are carried through", func(t *testing.T) {
		assert.Equal(t, int64(7), payload["total"])
		assert.Equal(t, map[string]int64{"user": 3, "message": 4}, payload["by_type"])
		assert.Equal(t, map[string]int64{"success": 5, "failed": 2}, payload["by_status"])
	})
}

func TestStatsPayloadEmpty(t *testing.T) {
	payload := statsPayload(&db.MappingStats{
		ByType:   map[models.EntityType]int64{},
		ByStatus: map[models.MappingStatus]int64{},
		Matrix:   map[models.EntityType]map[models.MappingStatus]int64{},
	})

	assert.Equal(t, int64(0), payload["total"])
	assert.Empty(t, payload["types"])
	assert.Equal(t, map[string]int64{
		"pending": 0, "skipped": 0, "failed": 0, "success": 0,
	}, payload["totals_row"])
}
