package providers

import "time"

// BaseProviderConfig holds the fields every provider config shares;
// embedding it gives each provider-specific config APIKey/BaseURL/Model/
// Timeout for free.
type BaseProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Models  []string      `json:"models,omitempty" yaml:"models,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAIConfig is the OpenAI provider's configuration.
type OpenAIConfig struct {
	BaseProviderConfig `yaml:",inline"`
}

// ClaudeConfig is the Anthropic Claude provider's configuration.
type ClaudeConfig struct {
	BaseProviderConfig `yaml:",inline"`
	AnthropicVersion   string `json:"anthropic_version,omitempty" yaml:"anthropic_version,omitempty"`
	MaxTokens          int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// GeminiConfig is the Google Gemini provider's configuration.
type GeminiConfig struct {
	BaseProviderConfig `yaml:",inline"`
}
