package ai

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// SystemPrompt describes the assistant's capabilities to the model.
const SystemPrompt = `You are a helpful AI assistant with access to various tools.

Your capabilities include:
- Searching Wikipedia for detailed information
- Searching the web for current information
- Saving content to files
- Getting the current date and time

Always be helpful, accurate, and cite your sources when using tools.
When saving information, provide a clear summary of what was saved.
If you're unsure about something, say so rather than making up information.`

// NewPromptTemplate lays out the system prompt, prior turns and the new input.
func NewPromptTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(SystemPrompt),
		schema.MessagesPlaceholder("chat_history", true),
		schema.UserMessage("{input}"),
	)
}
