package slack

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTS(t *testing.T) {
	t.Run("Plain timestamps parse as floats", func(t *testing.T) {
		assert.Equal(t, 1704067200.0001, ParseTS("1704067200.000100"))
		assert.Equal(t, 0.0, ParseTS("0"))
	})

	t.Run("Composite reaction ids fall back to their leading segment", func(t *testing.T) {
		assert.Equal(t, 1704067200.0001, ParseTS("1704067200.000100_wave_U001"))
		assert.Equal(t, 1704067200.0001, ParseTS("1704067200.000100_skin-tone-2_U001"))
	})

	t.Run("Unparseable input sorts last", func(t *testing.T) {
		assert.True(t, math.IsInf(ParseTS(""), 1))
		assert.True(t, math.IsInf(ParseTS("not-a-ts"), 1))
		assert.True(t, math.IsInf(ParseTS("wave_U001"), 1))
	})

	t.Run("Ordering is preserved across plain and composite ids", func(t *testing.T) {
		assert.Less(t, ParseTS("1704067200.000100"), ParseTS("1704067260.000200_wave_U001"))
		assert.Less(t, ParseTS("1704067260.000200_wave_U001"), ParseTS("garbage"))
	})
}

func TestTSToMillis(t *testing.T) {
	assert.Equal(t, int64(1704067200000), TSToMillis("1704067200.000100"))
	assert.Equal(t, int64(1704067260000), TSToMillis("1704067260.000200_wave_U001"))
	assert.Equal(t, int64(0), TSToMillis(""))
	assert.Equal(t, int64(0), TSToMillis("garbage"))
}
