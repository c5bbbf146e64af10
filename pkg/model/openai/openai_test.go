// Copyright 2025 The Weft Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openai

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/model"
)

func TestNewRequiresAPIKeyForHostedProvider(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	// Local daemons are keyless.
	client, err := New(Config{Provider: model.ProviderOllama, BaseURL: "http://localhost:11434/v1", Model: "llama3"})
	require.NoError(t, err)
	assert.Equal(t, model.ProviderOllama, client.Provider())
	assert.Equal(t, "llama3", client.Name())
}

func TestBuildRequestConversation(t *testing.T) {
	client, err := New(Config{APIKey: "sk-test", Model: "gpt-4o-mini"})
	require.NoError(t, err)

	req := &model.Request{
		SystemInstruction: "You are a currency assistant.",
		Messages: []*a2a.Message{
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "Find the USD rate"}),
			a2a.NewMessage(a2a.MessageRoleAgent, a2a.DataPart{
				Data: map[string]any{
					"type":      "tool_use",
					"id":        "call_123",
					"name":      "http_request",
					"arguments": map[string]any{"url": "https://open.er-api.com/v6/latest/USD"},
				},
			}),
			a2a.NewMessage(a2a.MessageRoleUser, a2a.DataPart{
				Data: map[string]any{
					"type":         "tool_result",
					"tool_call_id": "call_123",
					"content":      `{"rates":{"EUR":0.92}}`,
				},
			}),
		},
	}

	apiReq := client.buildRequest(req, false)

	require.Len(t, apiReq.Messages, 4)
	assert.Equal(t, "system", apiReq.Messages[0].Role)
	assert.Equal(t, "user", apiReq.Messages[1].Role)
	assert.Equal(t, "Find the USD rate", apiReq.Messages[1].Content)

	assert.Equal(t, "assistant", apiReq.Messages[2].Role)
	require.Len(t, apiReq.Messages[2].ToolCalls, 1)
	assert.Equal(t, "call_123", apiReq.Messages[2].ToolCalls[0].ID)
	assert.Equal(t, "http_request", apiReq.Messages[2].ToolCalls[0].Function.Name)
	assert.Contains(t, apiReq.Messages[2].ToolCalls[0].Function.Arguments, "open.er-api.com")

	assert.Equal(t, "tool", apiReq.Messages[3].Role)
	assert.Equal(t, "call_123", apiReq.Messages[3].ToolCallID)
	assert.Contains(t, apiReq.Messages[3].Content, "EUR")
}

func TestBuildRequestConfigOverrides(t *testing.T) {
	temp := 0.0
	maxTokens := 128
	topP := 0.9
	strict := true
	client, err := New(Config{APIKey: "sk-test", Model: "gpt-4o-mini"})
	require.NoError(t, err)

	req := &model.Request{
		Messages: []*a2a.Message{
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "hi"}),
		},
		Config: &model.GenerateConfig{
			Temperature:          &temp,
			MaxTokens:            &maxTokens,
			TopP:                 &topP,
			StopSequences:        []string{"END"},
			ResponseSchema:       map[string]any{"type": "object"},
			ResponseSchemaName:   "rate_report",
			ResponseSchemaStrict: &strict,
		},
	}

	apiReq := client.buildRequest(req, true)

	require.NotNil(t, apiReq.Temperature)
	assert.Equal(t, 0.0, *apiReq.Temperature)
	assert.Equal(t, 128, apiReq.MaxTokens)
	require.NotNil(t, apiReq.TopP)
	assert.Equal(t, 0.9, *apiReq.TopP)
	assert.Equal(t, []string{"END"}, apiReq.Stop)

	require.NotNil(t, apiReq.ResponseFormat)
	assert.Equal(t, "json_schema", apiReq.ResponseFormat.Type)
	assert.Equal(t, "rate_report", apiReq.ResponseFormat.JSONSchema.Name)
	assert.True(t, apiReq.ResponseFormat.JSONSchema.Strict)

	require.NotNil(t, apiReq.StreamOptions)
	assert.True(t, apiReq.StreamOptions.IncludeUsage)
}

func TestResponseSchemaStrictDefaultsTrue(t *testing.T) {
	client, err := New(Config{APIKey: "sk-test", Model: "gpt-4o-mini"})
	require.NoError(t, err)

	req := &model.Request{
		Messages: []*a2a.Message{
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "hi"}),
		},
		Config: &model.GenerateConfig{
			ResponseSchema: map[string]any{"type": "object"},
		},
	}

	apiReq := client.buildRequest(req, false)
	require.NotNil(t, apiReq.ResponseFormat)
	assert.True(t, apiReq.ResponseFormat.JSONSchema.Strict)
}

func TestGenerateParsesToolCallsAndUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_9",
						"type": "function",
						"function": {"name": "http_request", "arguments": "{\"url\":\"https://example.com\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {
				"prompt_tokens": 20,
				"completion_tokens": 8,
				"total_tokens": 28,
				"prompt_tokens_details": {"cached_tokens": 12}
			}
		}`)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "sk-test", BaseURL: server.URL, Model: "gpt-4o-mini"})
	require.NoError(t, err)

	req := &model.Request{
		Messages: []*a2a.Message{
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "fetch"}),
		},
	}

	var responses []*model.Response
	for resp, err := range client.GenerateContent(t.Context(), req, false) {
		require.NoError(t, err)
		responses = append(responses, resp)
	}

	require.Len(t, responses, 1)
	resp := responses[0]
	assert.False(t, resp.Partial)
	assert.Equal(t, model.FinishReasonToolCalls, resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "http_request", resp.ToolCalls[0].Name)
	assert.Equal(t, "https://example.com", resp.ToolCalls[0].Args["url"])
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 20, resp.Usage.PromptTokens)
	assert.Equal(t, 12, resp.Usage.CachedTokens)
}

func TestGenerateStreamAggregates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"The rate \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"is 0.92\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":4,\"total_tokens\":9}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "sk-test", BaseURL: server.URL, Model: "gpt-4o-mini"})
	require.NoError(t, err)

	req := &model.Request{
		Messages: []*a2a.Message{
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "rate?"}),
		},
	}

	var responses []*model.Response
	for resp, err := range client.GenerateContent(t.Context(), req, true) {
		require.NoError(t, err)
		responses = append(responses, resp)
	}

	require.Len(t, responses, 3)
	assert.True(t, responses[0].Partial)
	assert.Equal(t, "The rate ", responses[0].TextContent())
	assert.True(t, responses[1].Partial)

	final := responses[2]
	assert.False(t, final.Partial)
	assert.True(t, final.TurnComplete)
	assert.Equal(t, "The rate is 0.92", final.TextContent())
	require.NotNil(t, final.Usage)
	assert.Equal(t, 9, final.Usage.TotalTokens)
}

func TestGenerateStreamToolCallFragments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_7\",\"type\":\"function\",\"function\":{\"name\":\"lookup\",\"arguments\":\"{\\\"q\\\":\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"\\\"usd\\\"}\"}}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"tool_calls\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "sk-test", BaseURL: server.URL, Model: "gpt-4o-mini"})
	require.NoError(t, err)

	req := &model.Request{
		Messages: []*a2a.Message{
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "look up usd"}),
		},
	}

	var responses []*model.Response
	for resp, err := range client.GenerateContent(t.Context(), req, true) {
		require.NoError(t, err)
		responses = append(responses, resp)
	}

	// One partial carrying the assembled call, then the aggregate.
	require.Len(t, responses, 2)
	assert.True(t, responses[0].Partial)

	final := responses[1]
	assert.False(t, final.Partial)
	assert.Equal(t, model.FinishReasonToolCalls, final.FinishReason)
	require.Len(t, final.ToolCalls, 1)
	assert.Equal(t, "call_7", final.ToolCalls[0].ID)
	assert.Equal(t, "lookup", final.ToolCalls[0].Name)
	assert.Equal(t, "usd", final.ToolCalls[0].Args["q"])
}

func TestGenerateAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "bad key"}}`)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "sk-test", BaseURL: server.URL, Model: "gpt-4o-mini"})
	require.NoError(t, err)

	req := &model.Request{
		Messages: []*a2a.Message{
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "hi"}),
		},
	}

	for _, err := range client.GenerateContent(t.Context(), req, false) {
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	}
}
