package model

import "context"

// LLMRequester is the capability the runner uses to speak to a specific LLM
// provider's API shape. Concrete implementations (internal/providers/...)
// handle the HTTP request/response translation; the core never sees it.
type LLMRequester interface {
	// Initialize sets up the HTTP client (base URL, timeout, proxy,
	// keep-alive) from provider configuration.
	Initialize(ctx context.Context) error

	// Call sends a completion request and returns the final assembled
	// Message. When stream is true, intermediate deltas are delivered via
	// the requester's own out-of-band streaming hook (see StreamSink).
	Call(ctx context.Context, req *CompletionRequest) (Message, error)
}

// StreamSink receives incremental text deltas from a streaming Call.
// A concrete LLMRequester accepts one via CompletionRequest.OnDelta.
type StreamSink func(delta string)

// FunctionSpec describes one tool the model may call.
type FunctionSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

// CompletionRequest is the provider-agnostic shape of an LLM call.
type CompletionRequest struct {
	Model     string
	Messages  []Message
	Functions []FunctionSpec
	Stream    bool
	OnDelta   StreamSink
	MaxTokens int
}

// TokenManager tracks and rotates API keys / usage counters for a provider.
// Kept minimal: the core only needs to resolve "the next usable credential".
type TokenManager interface {
	NextKey() (string, error)
}

// LLMModelInfo names one callable model backed by a requester.
type LLMModelInfo struct {
	Name               string
	ProviderModelName  string
	Requester          LLMRequester
	TokenManager       TokenManager
	ToolCallSupported  bool
}

// Bot is the persistence record for one configured platform bot identity.
type Bot struct {
	UUID          string
	AdapterName   string
	AdapterConfig map[string]any
	Enable        bool
}
