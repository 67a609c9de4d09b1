package model

import "time"

// ClassifierModelConfig configures the model used for intent classification
// and domain routing. Classifiers run cold so the output stays parseable.
type ClassifierModelConfig struct {
	Model          string  `envconfig:"CLASSIFIER_MODEL" default:"gemini-2.0-flash"`
	APIKey         string  `envconfig:"GEMINI_API_KEY" required:"true"`
	Temperature    float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0.0"`
	MaxTokens      int     `envconfig:"CLASSIFIER_MAX_TOKENS" default:"1024"`
	ThinkingBudget int32   `envconfig:"CLASSIFIER_THINKING_BUDGET" default:"0"`
}

// ResponderModelConfig configures the model used by user-facing handlers and
// tool-calling sub-agents.
type ResponderModelConfig struct {
	Model          string  `envconfig:"RESPONDER_MODEL" default:"gemini-2.0-flash"`
	APIKey         string  `envconfig:"GEMINI_API_KEY" required:"true"`
	Temperature    float32 `envconfig:"RESPONDER_TEMPERATURE" default:"0.4"`
	MaxTokens      int     `envconfig:"RESPONDER_MAX_TOKENS" default:"4096"`
	ThinkingBudget int32   `envconfig:"RESPONDER_THINKING_BUDGET" default:"0"`
}

// ToolLoopConfig bounds every tool-calling sub-agent loop.
type ToolLoopConfig struct {
	MaxSteps int           `envconfig:"TOOL_MAX_STEPS" default:"8"`
	Timeout  time.Duration `envconfig:"TOOL_TIMEOUT" default:"90s"`
}

// ConversationConfig controls session persistence and transcript windowing.
type ConversationConfig struct {
	TTL           time.Duration `envconfig:"CONVERSATION_TTL" default:"24h"`
	HistoryWindow int           `envconfig:"CONVERSATION_HISTORY_WINDOW" default:"5"`
	Tools         ToolLoopConfig
}
