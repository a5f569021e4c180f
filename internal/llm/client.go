// Package llm is the generation-service contract and its HTTP clients.
package llm

import (
	"context"
	"net/http"
)

// Role is a chat message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation sent to the service.
type Message struct {
	Role    Role
	Content string
}

// Request describes one generation call.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	// Stream asks the service for incremental deltas. Non-streamed calls
	// still return a Stream carrying a single delta.
	Stream bool
}

// UserPrompt builds a single-message request body.
func UserPrompt(text string) []Message {
	return []Message{{Role: RoleUser, Content: text}}
}

// Client is a generation service.
type Client interface {
	Name() string
	Create(ctx context.Context, req Request) (*Stream, error)
}

// HTTPClient is the subset of *http.Client the providers use.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

var _ HTTPClient = (*http.Client)(nil)
