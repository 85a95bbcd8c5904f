package chat

import (
	"errors"
	"fmt"
)

// FallbackReply is returned to the user whenever the agent fails.
const FallbackReply = "I apologize, but I encountered an error processing your request. Please try again."

// EmptyAnswerReply stands in for an agent answer with no text.
const EmptyAnswerReply = "I'm sorry, I couldn't process that request."

var ErrSessionNotFound = errors.New("session not found")

// AgentError reports a failed agent run. The reply that accompanies it is
// always FallbackReply.
type AgentError struct {
	Err error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("error processing request: %v", e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}
