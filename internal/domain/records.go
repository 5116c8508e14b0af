package domain

// ScoreUpdate is a live-score delta produced by the score-polling job.
// Broadcast on the global live-scores channel and the per-match channel.
type ScoreUpdate struct {
	MatchID   int64  `json:"matchId"`
	HomeTeam  string `json:"homeTeam"`
	AwayTeam  string `json:"awayTeam"`
	HomeScore int    `json:"homeScore"`
	AwayScore int    `json:"awayScore"`
	Minute    int    `json:"minute"`
	Status    string `json:"status"`
}

// MatchEvent is a single in-match occurrence (goal, card, substitution).
// Broadcast on the per-match channel only.
type MatchEvent struct {
	MatchID int64  `json:"matchId"`
	Kind    string `json:"kind"`
	Minute  int    `json:"minute"`
	Team    string `json:"team,omitempty"`
	Player  string `json:"player,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Notification is a personal message for one authenticated identity.
type Notification struct {
	Kind  string `json:"kind"`
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}
