package chat

// Role tags who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversational turn kept in a bot's memory.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Speaker labels the message for transcripts.
func (m Message) Speaker() string {
	if m.Role == RoleAssistant {
		return "AI"
	}
	return "User"
}

// Text returns the message content.
func (m Message) Text() string {
	return m.Content
}
