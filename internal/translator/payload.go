package translator

import (
	"fmt"
	"strings"
)

// Payload styles.
const (
	StyleChat = "chat"
	StyleText = "text"
)

// GenerationParams carries the generation parameters of a provider profile.
type GenerationParams struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64
}

// ChatMessage is one entry of a chat-completion messages array.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatPayload is the chat-completion request body.
type ChatPayload struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

// TextPayload is the raw text-generation request body.
type TextPayload struct {
	Inputs     string         `json:"inputs"`
	Parameters TextParameters `json:"parameters"`
	Options    TextOptions    `json:"options"`
}

// TextParameters are the generation knobs of a text-generation request.
type TextParameters struct {
	MaxNewTokens   *int     `json:"max_new_tokens,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	ReturnFullText bool     `json:"return_full_text"`
}

// TextOptions asks the provider to answer immediately rather than block while a model loads;
// the invoker owns the waiting.
type TextOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// BuildPayload renders the request body for the given style.
func BuildPayload(style string, params GenerationParams, message string) (any, error) {
	switch style {
	case StyleChat:
		return buildChatPayload(params, message), nil
	case StyleText:
		return buildTextPayload(params, message), nil
	default:
		return nil, fmt.Errorf("unsupported payload style %q", style)
	}
}

func buildChatPayload(params GenerationParams, message string) ChatPayload {
	messages := make([]ChatMessage, 0, 2)
	if prompt := strings.TrimSpace(params.SystemPrompt); prompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: prompt})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: message})

	return ChatPayload{
		Model:       params.Model,
		Messages:    messages,
		MaxTokens:   positive(params.MaxTokens),
		Temperature: params.Temperature,
	}
}

func buildTextPayload(params GenerationParams, message string) TextPayload {
	return TextPayload{
		Inputs: message,
		Parameters: TextParameters{
			MaxNewTokens: positive(params.MaxTokens),
			Temperature:  params.Temperature,
		},
	}
}

func positive(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}
