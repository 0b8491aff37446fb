package dto

// PurgeUserResponse reports the outcome of a user purge on this campus and
// how many peers were scheduled.
type PurgeUserResponse struct {
	UserID      int64    `json:"user_id"`
	Role        string   `json:"role"`
	PeersQueued []string `json:"peers_queued"`
}
