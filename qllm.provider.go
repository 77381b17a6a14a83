package qllm

import "context"

// Message is a single chat message sent to a provider.
type Message struct {
	// Role is one of system, user, assistant.
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// NewUserMessage builds a user-role message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// GenerateOptions carries model-tuning parameters to a provider call.
// Parameters originate from the template's parameters block and pass
// through this layer untouched.
type GenerateOptions struct {
	// Model optionally overrides the provider's default model.
	Model string

	// Parameters holds opaque tuning knobs (temperature, max_tokens, ...).
	Parameters map[string]any
}

// Usage reports token accounting from a provider, when available.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// GenerateResult is a complete non-streaming provider response.
type GenerateResult struct {
	// Text is the full response text.
	Text string

	// FinishReason reports why generation stopped (provider-specific).
	FinishReason string

	// Usage carries token accounting, when the provider reports it.
	Usage Usage
}

// StreamChunk is a single element of a streaming provider response.
// Chunks arrive strictly in provider emission order; the engine performs
// no reordering or batching.
type StreamChunk struct {
	// TextDelta is the incremental text for this chunk.
	TextDelta string

	// FinishReason is set on the final chunk (provider-specific).
	FinishReason string

	// Err terminates the stream when non-nil. No further chunks follow.
	Err error
}

// Provider is the LLM collaborator boundary. Vendor authentication, model
// catalogs and request shaping live behind this interface; the engine
// depends on exactly this contract.
//
// Implementations must close the channel returned by Stream once the
// response is complete or failed.
type Provider interface {
	// Generate performs a blocking call and returns the full response.
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*GenerateResult, error)

	// Stream starts a streaming call and returns an ordered chunk channel.
	Stream(ctx context.Context, messages []Message, opts GenerateOptions) (<-chan StreamChunk, error)
}
