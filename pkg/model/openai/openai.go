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

// Package openai provides an OpenAI-compatible model client using the
// Chat Completions API.
//
// The same client serves api.openai.com, Ollama's OpenAI-compatible
// endpoint, and other compatible gateways; Config.Provider selects the
// reported provider. The client implements model.LLM: a unified
// GenerateContent with a stream flag returning iter.Seq2[*Response, error],
// with streaming going through the shared StreamingAggregator.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/weftworks/weft/pkg/httpclient"
	"github.com/weftworks/weft/pkg/model"
	"github.com/weftworks/weft/pkg/tool"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 4096
	defaultTimeout   = 120 * time.Second
)

// Config configures the client.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int

	// Provider overrides the reported provider. Defaults to
	// model.ProviderOpenAI; the Ollama factory sets ProviderOllama and
	// points BaseURL at the local daemon.
	Provider model.Provider
}

// Client is an OpenAI-compatible model.LLM implementation.
type Client struct {
	httpClient  *httpclient.Client
	apiKey      string
	baseURL     string
	modelName   string
	maxTokens   int
	temperature *float64
	provider    model.Provider
}

// New creates a new client. An API key is required for the hosted OpenAI
// provider; compatible gateways and local daemons may be keyless.
func New(cfg Config) (*Client, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = model.ProviderOpenAI
	}

	if cfg.APIKey == "" && provider == model.ProviderOpenAI {
		return nil, fmt.Errorf("API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}

	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		httpclient.WithMaxRetries(maxRetries),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
	)

	return &Client{
		httpClient:  httpClient,
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		provider:    provider,
	}, nil
}

// Name returns the model identifier.
func (c *Client) Name() string {
	return c.modelName
}

// Provider returns the provider type.
func (c *Client) Provider() model.Provider {
	return c.provider
}

// GenerateContent produces responses for the given request.
//
// When stream=false it yields exactly one complete Response. When
// stream=true it yields partial responses followed by the aggregated
// Partial=false response for session persistence.
func (c *Client) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	if stream {
		return c.generateStream(ctx, req)
	}

	return func(yield func(*model.Response, error) bool) {
		resp, err := c.generate(ctx, req)
		yield(resp, err)
	}
}

// Close releases resources.
func (c *Client) Close() error {
	return nil
}

func (c *Client) generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	apiReq := c.buildRequest(req, false)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return c.parseResponse(&apiResp)
}

// pendingToolCall accumulates a streamed tool call by choice-delta index.
type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

// streamState holds state accumulated during SSE parsing.
type streamState struct {
	toolCalls    map[int]*pendingToolCall
	order        []int
	usage        *model.Usage
	finishReason model.FinishReason
}

func newStreamState() *streamState {
	return &streamState{
		toolCalls:    make(map[int]*pendingToolCall),
		finishReason: model.FinishReasonStop,
	}
}

func (c *Client) generateStream(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	aggregator := model.NewStreamingAggregator()

	return func(yield func(*model.Response, error) bool) {
		apiReq := c.buildRequest(req, true)

		body, err := json.Marshal(apiReq)
		if err != nil {
			yield(nil, fmt.Errorf("failed to marshal request: %w", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			yield(nil, fmt.Errorf("failed to create request: %w", err))
			return
		}

		c.setHeaders(httpReq)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			yield(nil, fmt.Errorf("request failed: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			yield(nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body)))
			return
		}

		reader := bufio.NewReader(resp.Body)
		state := newStreamState()

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					break
				}
				yield(nil, fmt.Errorf("stream read error: %w", err))
				return
			}

			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}

			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}

			for resp, err := range c.processChunk(&chunk, state, aggregator) {
				if !yield(resp, err) {
					return
				}
			}
		}

		// Tool calls arrive as argument fragments; flush them once the
		// stream ends so each carries complete arguments.
		for _, idx := range state.order {
			pending := state.toolCalls[idx]
			tc := tool.ToolCall{ID: pending.id, Name: pending.name}
			if raw := pending.args.String(); raw != "" {
				var args map[string]any
				_ = json.Unmarshal([]byte(raw), &args)
				tc.Args = args
			}
			for resp, err := range aggregator.ProcessToolCall(tc) {
				if !yield(resp, err) {
					return
				}
			}
		}

		if state.usage != nil {
			aggregator.SetUsage(state.usage)
		}
		aggregator.SetFinishReason(state.finishReason)

		// The aggregated Partial=false response is the persistence copy.
		if final := aggregator.Close(); final != nil {
			yield(final, nil)
		}
	}
}

func (c *Client) processChunk(chunk *streamChunk, state *streamState, agg *model.StreamingAggregator) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		if chunk.Usage != nil {
			state.usage = usageFromAPI(chunk.Usage)
		}

		for _, choice := range chunk.Choices {
			if choice.FinishReason != "" {
				state.finishReason = mapFinishReason(choice.FinishReason)
			}
			if choice.Delta == nil {
				continue
			}

			if choice.Delta.Content != "" {
				for resp, err := range agg.ProcessTextDelta(choice.Delta.Content) {
					if !yield(resp, err) {
						return
					}
				}
			}

			for _, tcd := range choice.Delta.ToolCalls {
				pending, ok := state.toolCalls[tcd.Index]
				if !ok {
					pending = &pendingToolCall{}
					state.toolCalls[tcd.Index] = pending
					state.order = append(state.order, tcd.Index)
				}
				if tcd.ID != "" {
					pending.id = tcd.ID
				}
				if tcd.Function != nil {
					if tcd.Function.Name != "" {
						pending.name = tcd.Function.Name
					}
					pending.args.WriteString(tcd.Function.Arguments)
				}
			}
		}
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// buildRequest creates an API request from model.Request. Per-request
// GenerateConfig values override the client defaults.
func (c *Client) buildRequest(req *model.Request, stream bool) *apiRequest {
	apiReq := &apiRequest{
		Model:       c.modelName,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      stream,
	}
	if stream {
		apiReq.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	if cfg := req.Config; cfg != nil {
		if cfg.Temperature != nil {
			apiReq.Temperature = cfg.Temperature
		}
		if cfg.MaxTokens != nil && *cfg.MaxTokens > 0 {
			apiReq.MaxTokens = *cfg.MaxTokens
		}
		if cfg.TopP != nil {
			apiReq.TopP = cfg.TopP
		}
		if len(cfg.StopSequences) > 0 {
			apiReq.Stop = cfg.StopSequences
		}
		if cfg.ResponseSchema != nil {
			name := cfg.ResponseSchemaName
			if name == "" {
				name = "response"
			}
			// nil means strict.
			strict := true
			if cfg.ResponseSchemaStrict != nil {
				strict = *cfg.ResponseSchemaStrict
			}
			apiReq.ResponseFormat = &responseFormat{
				Type: "json_schema",
				JSONSchema: &jsonSchemaSpec{
					Name:   name,
					Strict: strict,
					Schema: cfg.ResponseSchema,
				},
			}
		} else if cfg.ResponseMIMEType == "application/json" {
			apiReq.ResponseFormat = &responseFormat{Type: "json_object"}
		}
	}

	if req.SystemInstruction != "" {
		apiReq.Messages = append(apiReq.Messages, apiMessage{
			Role:    "system",
			Content: req.SystemInstruction,
		})
	}

	for _, msg := range req.Messages {
		if msg == nil {
			continue
		}
		apiReq.Messages = append(apiReq.Messages, convertMessage(msg)...)
	}

	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, apiTool{
			Type: "function",
			Function: apiFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return apiReq
}

// convertMessage maps one a2a message to Chat Completions messages. Text
// and tool-use parts fold into a single message; each tool-result part
// becomes its own "tool" role message, as the API requires.
func convertMessage(msg *a2a.Message) []apiMessage {
	role := "user"
	if msg.Role == a2a.MessageRoleAgent {
		role = "assistant"
	}

	var out []apiMessage
	var text strings.Builder
	var toolCalls []apiToolCall

	for _, part := range msg.Parts {
		switch p := part.(type) {
		case a2a.TextPart:
			text.WriteString(p.Text)
		case a2a.DataPart:
			data := p.Data
			if dataType, ok := data["type"].(string); ok {
				switch dataType {
				case "tool_use":
					args := "{}"
					if a, ok := data["arguments"].(map[string]any); ok && a != nil {
						if raw, err := json.Marshal(a); err == nil {
							args = string(raw)
						}
					}
					toolCalls = append(toolCalls, apiToolCall{
						ID:   getString(data, "id"),
						Type: "function",
						Function: apiFunction{
							Name:      getString(data, "name"),
							Arguments: args,
						},
					})
					continue
				case "tool_result":
					content := getString(data, "content")
					if content == "" {
						content = "(no output)"
					}
					out = append(out, apiMessage{
						Role:       "tool",
						ToolCallID: getString(data, "tool_call_id"),
						Content:    content,
					})
					continue
				}
			}
			jsonData, _ := json.Marshal(p.Data)
			text.WriteString(string(jsonData))
		}
	}

	if text.Len() > 0 || len(toolCalls) > 0 {
		// The primary message precedes its tool results.
		primary := apiMessage{
			Role:      role,
			Content:   text.String(),
			ToolCalls: toolCalls,
		}
		out = append([]apiMessage{primary}, out...)
	}

	return out
}

func (c *Client) parseResponse(resp *apiResponse) (*model.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("API returned no choices")
	}
	choice := resp.Choices[0]

	result := &model.Response{
		Partial:      false,
		TurnComplete: true,
		Usage:        usageFromAPI(resp.Usage),
		FinishReason: mapFinishReason(choice.FinishReason),
	}

	if choice.Message != nil {
		if choice.Message.Content != "" {
			result.Content = &model.Content{
				Parts: []a2a.Part{a2a.TextPart{Text: choice.Message.Content}},
				Role:  a2a.MessageRoleAgent,
			}
		}
		for _, tc := range choice.Message.ToolCalls {
			var args map[string]any
			if tc.Function.Arguments != "" {
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			}
			result.ToolCalls = append(result.ToolCalls, tool.ToolCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: args,
			})
		}
	}

	return result, nil
}

func mapFinishReason(reason string) model.FinishReason {
	switch reason {
	case "tool_calls", "function_call":
		return model.FinishReasonToolCalls
	case "length":
		return model.FinishReasonLength
	default:
		return model.FinishReasonStop
	}
}

func usageFromAPI(u *apiUsage) *model.Usage {
	if u == nil {
		return nil
	}
	usage := &model.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		usage.CachedTokens = u.PromptTokensDetails.CachedTokens
	}
	return usage
}

// getString safely extracts a string from a map, converting non-string
// values to their string representation.
func getString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", v)
}

// API types

type apiRequest struct {
	Model          string          `json:"model"`
	Messages       []apiMessage    `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	Stop           []string        `json:"stop,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	StreamOptions  *streamOptions  `json:"stream_options,omitempty"`
	Tools          []apiTool       `json:"tools,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type apiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type apiToolCall struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Function apiFunction `json:"function"`
}

type apiFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type apiTool struct {
	Type     string         `json:"type"`
	Function apiFunctionDef `json:"function"`
}

type apiFunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *jsonSchemaSpec `json:"json_schema,omitempty"`
}

type jsonSchemaSpec struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict,omitempty"`
	Schema map[string]any `json:"schema"`
}

type apiResponse struct {
	ID      string      `json:"id"`
	Choices []apiChoice `json:"choices"`
	Usage   *apiUsage   `json:"usage,omitempty"`
}

// streamChunk is one SSE data frame of a streamed completion. With
// stream_options.include_usage the final frame carries usage and an
// empty choices list.
type streamChunk struct {
	ID      string      `json:"id"`
	Choices []apiChoice `json:"choices"`
	Usage   *apiUsage   `json:"usage,omitempty"`
}

type apiChoice struct {
	Index        int         `json:"index"`
	Message      *apiMessage `json:"message,omitempty"`
	Delta        *apiDelta   `json:"delta,omitempty"`
	FinishReason string      `json:"finish_reason"`
}

type apiDelta struct {
	Role      string             `json:"role,omitempty"`
	Content   string             `json:"content,omitempty"`
	ToolCalls []apiToolCallDelta `json:"tool_calls,omitempty"`
}

type apiToolCallDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function *apiFunction `json:"function,omitempty"`
}

type apiUsage struct {
	PromptTokens        int                  `json:"prompt_tokens"`
	CompletionTokens    int                  `json:"completion_tokens"`
	TotalTokens         int                  `json:"total_tokens"`
	PromptTokensDetails *promptTokensDetails `json:"prompt_tokens_details,omitempty"`
}

type promptTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// Ensure Client implements model.LLM
var _ model.LLM = (*Client)(nil)
