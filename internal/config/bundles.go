// Package config loads and validates the gateway's five configuration
// bundles (command, pipeline, platform, provider, system), each a separate
// YAML document validated against a JSON Schema, and supports swapping a
// freshly validated snapshot in atomically on a file-watch event.
package config

import "time"

// CommandConfig is the "command" bundle: prefix list and built-in command
// behavior.
type CommandConfig struct {
	Prefixes        []string            `yaml:"prefixes" json:"prefixes"`
	InlineCommands  []string            `yaml:"inline_commands" json:"inline_commands"`
	AllowFrom       map[string][]string `yaml:"allow_from" json:"allow_from"`
	UnauthorizedMsg string              `yaml:"unauthorized_message" json:"unauthorized_message"`

	// BotAdmins lists the sender ids allowed to run bot-admin commands.
	BotAdmins []string `yaml:"bot_admins" json:"bot_admins"`

	// GroupAdmins maps a group launcher id to the sender ids holding
	// group-admin authority there, for platforms whose adapters don't
	// expose an admin lookup of their own.
	GroupAdmins map[string][]string `yaml:"group_admins" json:"group_admins"`
}

// PipelineConfig is the "pipeline" bundle: stage toggles, runner selection,
// prompt templates and rate-limit strategy.
type PipelineConfig struct {
	Stages          StageToggles    `yaml:"stages" json:"stages"`
	Runner          RunnerSelection `yaml:"runner" json:"runner"`
	PromptTemplate  string          `yaml:"prompt_template" json:"prompt_template"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	MaxPromptTokens int             `yaml:"max_prompt_tokens" json:"max_prompt_tokens"`

	// TimeoutReply, when non-empty, is sent to the user if a query hits
	// the per-query wall-clock timeout before any reply went out.
	TimeoutReply string `yaml:"timeout_reply" json:"timeout_reply"`
}

// StageToggles enables or disables individual pipeline stages.
type StageToggles struct {
	Normalize       bool `yaml:"normalize" json:"normalize"`
	AccessPolicy    bool `yaml:"access_policy" json:"access_policy"`
	SessionAcquire  bool `yaml:"session_acquire" json:"session_acquire"`
	CommandDispatch bool `yaml:"command_dispatch" json:"command_dispatch"`
	ReplySend       bool `yaml:"reply_send" json:"reply_send"`
}

// RunnerSelection picks which runner implementation services a
// conversation: "local" drives the tool-calling loop directly; "bridge"
// proxies to an external agent/workflow service.
type RunnerSelection struct {
	Kind       string `yaml:"kind" json:"kind"` // "local" | "bridge"
	BridgeName string `yaml:"bridge_name" json:"bridge_name"`
}

// RateLimitConfig bounds how often a launcher may submit queries.
type RateLimitConfig struct {
	Strategy       string        `yaml:"strategy" json:"strategy"` // "none" | "token_bucket"
	RequestsPerMin int           `yaml:"requests_per_min" json:"requests_per_min"`
	Burst          int           `yaml:"burst" json:"burst"`
	Window         time.Duration `yaml:"window" json:"window"`
}

// PlatformConfig is the "platform" bundle: which bot entities to load and
// global reply behavior.
type PlatformConfig struct {
	Bots        []BotEntryConfig `yaml:"bots" json:"bots"`
	AtSender    bool             `yaml:"at_sender" json:"at_sender"`
	QuoteOrigin bool             `yaml:"quote_origin" json:"quote_origin"`
	MuteRules   []MuteRuleConfig `yaml:"mute_rules" json:"mute_rules"`
}

// BotEntryConfig names one configured bot identity to load at boot.
type BotEntryConfig struct {
	UUID        string         `yaml:"uuid" json:"uuid"`
	AdapterName string         `yaml:"adapter_name" json:"adapter_name"`
	Config      map[string]any `yaml:"config" json:"config"`
	Enable      bool           `yaml:"enable" json:"enable"`
}

// MuteRuleConfig silences a bot in a specific group.
type MuteRuleConfig struct {
	GroupID string `yaml:"group_id" json:"group_id"`
}

// ProviderConfig is the "provider" bundle: LLM provider keys, base URLs,
// model defaults and tool-calling toggles.
type ProviderConfig struct {
	DefaultModel string                      `yaml:"default_model" json:"default_model"`
	Models       map[string]ModelEntryConfig `yaml:"models" json:"models"`

	// Bridges names the external agent/workflow endpoints a pipeline's
	// `runner: {kind: bridge, bridge_name: <name>}` selection routes to.
	Bridges map[string]BridgeEntryConfig `yaml:"bridges" json:"bridges"`
}

// BridgeEntryConfig describes one external agent/workflow endpoint.
type BridgeEntryConfig struct {
	Mode       string `yaml:"mode" json:"mode"` // "agent" | "workflow"
	BaseURL    string `yaml:"base_url" json:"base_url"`
	AuthToken  string `yaml:"auth_token" json:"auth_token"`
	BotID      string `yaml:"bot_id" json:"bot_id"`
	WorkflowID string `yaml:"workflow_id" json:"workflow_id"`
	AppID      string `yaml:"app_id" json:"app_id"`
	InputKey   string `yaml:"input_key" json:"input_key"`
	Stream     bool   `yaml:"stream" json:"stream"`
}

// ModelEntryConfig describes one named model a provider serves.
type ModelEntryConfig struct {
	Provider          string         `yaml:"provider" json:"provider"` // "anthropic" | "openai"
	ProviderModelName string         `yaml:"provider_model_name" json:"provider_model_name"`
	APIKey            string         `yaml:"api_key" json:"api_key"`
	BaseURL           string         `yaml:"base_url" json:"base_url"`
	Timeout           time.Duration  `yaml:"timeout" json:"timeout"`
	ToolCallSupported bool           `yaml:"tool_call_supported" json:"tool_call_supported"`
	RequestArgs       map[string]any `yaml:"request_args" json:"request_args"`
}

// SystemConfig is the "system" bundle: HTTP API, session concurrency, task
// timeouts and logging level.
type SystemConfig struct {
	HTTP               HTTPConfig    `yaml:"http" json:"http"`
	QueryWorkers       int           `yaml:"query_workers" json:"query_workers"`
	SessionConcurrency int           `yaml:"session_concurrency" json:"session_concurrency"`
	SessionExpireAfter time.Duration `yaml:"session_expire_after" json:"session_expire_after"`
	QueryTimeout       time.Duration `yaml:"query_timeout" json:"query_timeout"`
	LLMTimeout         time.Duration `yaml:"llm_timeout" json:"llm_timeout"`
	LogLevel           string        `yaml:"log_level" json:"log_level"`
}

// HTTPConfig configures the control-plane HTTP server.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
}

// Bundles is every loaded configuration bundle, swapped as one atomic unit
// by Loader.
type Bundles struct {
	Command  CommandConfig
	Pipeline PipelineConfig
	Platform PlatformConfig
	Provider ProviderConfig
	System   SystemConfig
}
