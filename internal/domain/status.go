package domain

import "context"

// StatusResult is the live state of a server as reported by the public status API.
// Results are produced per check and never cached across renders.
type StatusResult struct {
	Online     bool   `json:"online"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
	Version    string `json:"version,omitempty"`
	MOTD       string `json:"motd,omitempty"`
}

// OfflineStatus is reported whenever a check fails for any reason.
func OfflineStatus() StatusResult {
	return StatusResult{}
}

// StatusChecker looks up a server's live status. It never returns an error:
// every failure degrades to OfflineStatus. bedrock selects the Bedrock protocol variant.
type StatusChecker interface {
	Check(ctx context.Context, host string, port int, bedrock bool) StatusResult
}
