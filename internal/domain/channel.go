package domain

import "strconv"

// Channel names. The personal channel is a fixed literal scoped implicitly to
// the connection's authenticated identity; it never encodes the identity, so
// subscribers inspecting channel lists cannot learn who else is connected.
const (
	ChannelLiveScores    = "live_scores"
	ChannelNotifications = "notifications"

	matchChannelPrefix = "match:"
)

// MatchChannel returns the per-match event channel name.
func MatchChannel(matchID int64) string {
	return matchChannelPrefix + strconv.FormatInt(matchID, 10)
}
