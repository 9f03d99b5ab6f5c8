package slack

import (
	"math"
	"strconv"
	"strings"
)

// ParseTS converts a Slack timestamp ("1704067200.000100") to a float for
// ordering. Composite ids of the form "<ts>_<emoji>_<user>" fall back to
// their leading segment. Unparseable input returns +Inf so it sorts last.
func ParseTS(ts string) float64 {
	if v, err := strconv.ParseFloat(ts, 64); err == nil {
		return v
	}
	if head, _, found := strings.Cut(ts, "_"); found {
		if v, err := strconv.ParseFloat(head, 64); err == nil {
			return v
		}
	}
	return math.Inf(1)
}

// TSToMillis converts a Slack timestamp to Unix milliseconds. Unparseable
// input returns 0, which Mattermost treats as "now".
func TSToMillis(ts string) int64 {
	v := ParseTS(ts)
	if math.IsInf(v, 1) {
		return 0
	}
	return int64(v * 1000)
}
