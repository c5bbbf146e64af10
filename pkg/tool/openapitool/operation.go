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

package openapitool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/weftworks/weft/pkg/httpclient"
	"github.com/weftworks/weft/pkg/tool"
)

const maxResponseSize = 10485760 // 10MB, same cap as http_request

// operationTool is one OpenAPI operation exposed as a callable tool.
// Path, query and header parameters plus body properties share a flat
// argument namespace; the operation's parameter declarations decide
// where each argument goes on the wire.
type operationTool struct {
	name        string
	description string
	method      string
	pathTmpl    string
	baseURL     string
	params      []parameter
	bodySchema  map[string]any
	bodyProps   map[string]bool

	auth         authApplier
	client       *httpclient.Client
	allowPrivate bool
}

func newOperationTool(baseURL, method, path string, op operation, auth authApplier, timeout time.Duration, allowPrivate bool) *operationTool {
	t := &operationTool{
		name:         operationName(method, path, op),
		description:  operationDescription(method, path, op),
		method:       strings.ToUpper(method),
		pathTmpl:     path,
		baseURL:      baseURL,
		params:       op.Parameters,
		auth:         auth,
		allowPrivate: allowPrivate,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(3),
		),
	}

	if op.RequestBody != nil {
		if media, ok := op.RequestBody.Content["application/json"]; ok {
			t.bodySchema = media.Schema
			t.bodyProps = make(map[string]bool)
			if props, ok := media.Schema["properties"].(map[string]any); ok {
				for name := range props {
					t.bodyProps[name] = true
				}
			}
		}
	}
	return t
}

func operationDescription(method, path string, op operation) string {
	switch {
	case op.Description != "":
		return op.Description
	case op.Summary != "":
		return op.Summary
	default:
		return fmt.Sprintf("%s %s", strings.ToUpper(method), path)
	}
}

func (t *operationTool) Name() string        { return t.name }
func (t *operationTool) Description() string { return t.description }
func (t *operationTool) IsLongRunning() bool { return false }

// Schema flattens parameters and body properties into one object.
func (t *operationTool) Schema() map[string]any {
	properties := make(map[string]any)
	var required []string

	for _, p := range t.params {
		schema := p.Schema
		if schema == nil {
			schema = map[string]any{"type": "string"}
		}
		if p.Description != "" {
			schema = withDescription(schema, p.Description)
		}
		properties[p.Name] = schema
		if p.Required || p.In == "path" {
			required = append(required, p.Name)
		}
	}

	if t.bodySchema != nil {
		if props, ok := t.bodySchema["properties"].(map[string]any); ok {
			for name, schema := range props {
				if _, taken := properties[name]; !taken {
					properties[name] = schema
				}
			}
			for _, name := range stringSlice(t.bodySchema["required"]) {
				required = append(required, name)
			}
		}
	}

	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// Call assembles and issues the HTTP request. Upstream failures come
// back as {"error": ...} data; only a malformed request is a Go error.
func (t *operationTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	reqURL, headers, err := t.buildURL(args)
	if err != nil {
		return nil, err
	}

	if err := tool.ValidateOutboundURL(reqURL, t.allowPrivate); err != nil {
		return nil, err
	}

	var body io.Reader
	if t.bodySchema != nil {
		payload := make(map[string]any)
		for name := range t.bodyProps {
			if v, ok := args[name]; ok {
				payload[name] = v
			}
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, t.method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	t.auth(req)

	// A non-2xx status comes back as a response plus an error; only a
	// nil response means the request never completed.
	resp, err := t.client.Do(req)
	if resp == nil {
		return t.errorResult(reqURL, fmt.Sprintf("request failed: %v", err)), nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return t.errorResult(reqURL, fmt.Sprintf("read response: %v", err)), nil
	}
	if len(raw) > maxResponseSize {
		return t.errorResult(reqURL, fmt.Sprintf("response too large: exceeds %d bytes", maxResponseSize)), nil
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"url":         reqURL,
		"method":      t.method,
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result["error"] = fmt.Sprintf("HTTP %s", resp.Status)
	}

	// JSON responses decode into the result so downstream expressions
	// can reach into fields; anything else stays a string.
	var decoded any
	if json.Unmarshal(raw, &decoded) == nil {
		result["body"] = decoded
	} else {
		result["body"] = string(raw)
	}
	return result, nil
}

// buildURL substitutes path parameters and appends query parameters.
// Header parameters come back separately.
func (t *operationTool) buildURL(args map[string]any) (string, map[string]string, error) {
	path := t.pathTmpl
	query := url.Values{}
	headers := make(map[string]string)

	for _, p := range t.params {
		value, present := args[p.Name]
		switch p.In {
		case "path":
			if !present {
				return "", nil, fmt.Errorf("missing required path parameter %q", p.Name)
			}
			path = strings.ReplaceAll(path, "{"+p.Name+"}",
				url.PathEscape(fmt.Sprintf("%v", value)))
		case "query":
			if present {
				query.Set(p.Name, fmt.Sprintf("%v", value))
			}
		case "header":
			if present {
				headers[p.Name] = fmt.Sprintf("%v", value)
			}
		}
	}

	if strings.Contains(path, "{") {
		return "", nil, fmt.Errorf("path %s has unresolved parameters", path)
	}

	full := t.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		full += "?" + encoded
	}
	return full, headers, nil
}

func (t *operationTool) errorResult(url, msg string) map[string]any {
	return map[string]any{
		"error":  msg,
		"url":    url,
		"method": t.method,
	}
}

func withDescription(schema map[string]any, description string) map[string]any {
	out := make(map[string]any, len(schema)+1)
	for k, v := range schema {
		out[k] = v
	}
	if _, ok := out["description"]; !ok {
		out["description"] = description
	}
	return out
}

func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

var _ tool.CallableTool = (*operationTool)(nil)
