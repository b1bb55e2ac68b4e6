package translator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPayload_Chat(t *testing.T) {
	temp := 0.4
	payload, err := BuildPayload(StyleChat, GenerationParams{
		Model:        "m",
		SystemPrompt: "be brief",
		MaxTokens:    180,
		Temperature:  &temp,
	}, "hello")
	require.NoError(t, err)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"model":"m",
		"messages":[{"role":"system","content":"be brief"},{"role":"user","content":"hello"}],
		"max_tokens":180,
		"temperature":0.4
	}`, string(data))
}

func TestBuildPayload_ChatWithoutSystemPrompt(t *testing.T) {
	payload, err := BuildPayload(StyleChat, GenerationParams{Model: "m"}, "hello")
	require.NoError(t, err)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"m","messages":[{"role":"user","content":"hello"}]}`, string(data))
}

func TestBuildPayload_Text(t *testing.T) {
	payload, err := BuildPayload(StyleText, GenerationParams{Model: "m", MaxTokens: 50}, "hello")
	require.NoError(t, err)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"inputs":"hello",
		"parameters":{"max_new_tokens":50,"return_full_text":false},
		"options":{"wait_for_model":false}
	}`, string(data))
}

func TestBuildPayload_UnknownStyle(t *testing.T) {
	_, err := BuildPayload("grpc", GenerationParams{}, "hello")
	assert.Error(t, err)
}
