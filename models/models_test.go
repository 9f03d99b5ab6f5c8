package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityTypeJobScoped(t *testing.T) {
	assert.True(t, EntityTypeMessage.JobScoped())
	assert.True(t, EntityTypeReaction.JobScoped())
	assert.True(t, EntityTypeAttachment.JobScoped())

	assert.False(t, EntityTypeUser.JobScoped())
	assert.False(t, EntityTypeChannel.JobScoped())
	assert.False(t, EntityTypeCustomEmoji.JobScoped())
}

func TestExportOrder(t *testing.T) {
	expected := []EntityType{
		EntityTypeUser, EntityTypeCustomEmoji, EntityTypeChannel,
		EntityTypeAttachment, EntityTypeMessage, EntityTypeReaction,
	}
	assert.Equal(t, expected, ExportOrder)
}

func TestIsImportStage(t *testing.T) {
	assert.True(t, StageExtracting.IsImportStage())
	assert.True(t, StageAttachments.IsImportStage())

	assert.False(t, StageExporting.IsImportStage())
	assert.False(t, StageDone.IsImportStage())
	assert.False(t, JobStage("made-up").IsImportStage())
}

func TestStageNames(t *testing.T) {
	names := StageNames()
	require.Len(t, names, len(AllStages))
	assert.Equal(t, "extracting", names[0])
	assert.Equal(t, "done", names[len(names)-1])
}

func TestTotalsAsMap(t *testing.T) {
	m := Totals{Messages: 10, Reactions: 3, Attachments: 2, Emojis: 1}.AsMap()

	assert.Equal(t, int64(10), m.GetInt("messages"))
	assert.Equal(t, int64(3), m.GetInt("reactions"))
	assert.Equal(t, int64(2), m.GetInt("attachments"))
	assert.Equal(t, int64(1), m.GetInt("emojis"))
}

func TestJSONMapValue(t *testing.T) {
	t.Run("Nil maps serialize as an empty object", func(t *testing.T) {
		var m JSONMap
		v, err := m.Value()
		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), v)
	})

	t.Run("Round trips through driver.Value", func(t *testing.T) {
		m := JSONMap{"name": "general", "count": float64(3)}
		v, err := m.Value()
		require.NoError(t, err)

		var back JSONMap
		require.NoError(t, back.Scan(v))
		assert.Equal(t, m, back)
	})
}

func TestJSONMapScan(t *testing.T) {
	t.Run("Accepts bytes and strings", func(t *testing.T) {
		var m JSONMap
		require.NoError(t, m.Scan([]byte(`{"a": 1}`)))
		assert.Equal(t, int64(1), m.GetInt("a"))

		require.NoError(t, m.Scan(`{"b": "x"}`))
		assert.Equal(t, "x", m.GetString("b"))
	})

	t.Run("Nil and empty input become an empty map", func(t *testing.T) {
		var m JSONMap
		require.NoError(t, m.Scan(nil))
		require.NotNil(t, m)
		assert.Empty(t, m)

		require.NoError(t, m.Scan([]byte{}))
		assert.Empty(t, m)
	})

	t.Run("Unsupported types are rejected", func(t *testing.T) {
		var m JSONMap
		assert.Error(t, m.Scan(42))
	})
}

func TestJSONMapGetters(t *testing.T) {
	m := JSONMap{
		"str":    "hello",
		"float":  float64(7),
		"int":    42,
		"int64":  int64(9),
		"number": json.Number("11"),
		"other":  true,
	}

	assert.Equal(t, "hello", m.GetString("str"))
	assert.Equal(t, "", m.GetString("float"))
	assert.Equal(t, "", m.GetString("missing"))

	assert.Equal(t, int64(7), m.GetInt("float"))
	assert.Equal(t, int64(42), m.GetInt("int"))
	assert.Equal(t, int64(9), m.GetInt("int64"))
	assert.Equal(t, int64(11), m.GetInt("number"))
	assert.Equal(t, int64(0), m.GetInt("other"))
	assert.Equal(t, int64(0), m.GetInt("missing"))

	var nilMap JSONMap
	assert.Equal(t, "", nilMap.GetString("any"))
	assert.Equal(t, int64(0), nilMap.GetInt("any"))
}
