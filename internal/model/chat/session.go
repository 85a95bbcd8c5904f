package chat

// SessionInfo summarises a live session for listing and lookup.
type SessionInfo struct {
	ID           string `json:"session_id"`
	MessageCount int    `json:"message_count"`
	CreatedAt    string `json:"created_at"`
}
