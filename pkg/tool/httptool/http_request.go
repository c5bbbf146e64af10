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

// Package httptool provides the http_request built-in tool for outbound
// HTTP calls from workflows.
//
// Every request passes the outbound URL guard: private, loopback,
// link-local and reserved destinations are rejected unless the operator
// sets Config.AllowPrivate. Network failures and oversized responses are
// reported as {"error": ...} result mappings rather than call errors, so
// downstream agents can branch on them.
package httptool

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/weftworks/weft/pkg/httpclient"
	"github.com/weftworks/weft/pkg/tool"
	"github.com/weftworks/weft/pkg/tool/functiontool"
)

// HTTPRequestArgs defines the parameters for the http_request tool.
// Headers travel as a JSON object string so the schema stays flat for
// models that struggle with nested parameter objects.
type HTTPRequestArgs struct {
	URL     string `json:"url" jsonschema:"required,description=The URL to request"`
	Method  string `json:"method,omitempty" jsonschema:"description=HTTP method,default=GET,enum=GET|POST|PUT|DELETE|PATCH|HEAD|OPTIONS"`
	Headers string `json:"headers,omitempty" jsonschema:"description=HTTP headers as a JSON object string"`
	Body    string `json:"body,omitempty" jsonschema:"description=Request body (for POST PUT PATCH)"`
}

// Config controls limits and access rules for the http_request tool.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	MaxRequestSize  int64
	MaxResponseSize int64
	AllowedDomains  []string
	DeniedDomains   []string
	AllowedMethods  []string
	AllowRedirects  bool
	MaxRedirects    int
	UserAgent       string

	// AllowPrivate disables the private-address guard. Operator opt-in
	// only; it is never exposed as a tool parameter.
	AllowPrivate bool
}

// DefaultConfig returns the limits applied when no config is given.
func DefaultConfig() *Config {
	return &Config{
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		MaxRequestSize:  1048576,  // 1MB
		MaxResponseSize: 10485760, // 10MB
		AllowRedirects:  true,
		MaxRedirects:    10,
		UserAgent:       "Weft/1.0",
	}
}

// New creates the http_request tool.
func New(cfg *Config) (tool.CallableTool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !cfg.AllowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			// Redirect targets get the same guard as the original URL.
			if err := tool.ValidateOutboundURL(req.URL.String(), cfg.AllowPrivate); err != nil {
				return err
			}
			return nil
		},
	}

	hc := httpclient.New(
		httpclient.WithHTTPClient(httpClient),
		httpclient.WithMaxRetries(cfg.MaxRetries),
	)

	return functiontool.NewWithValidation(
		functiontool.Config{
			Name:        "http_request",
			Description: "Make HTTP requests to external APIs and web services. Supports all HTTP methods, custom headers, and request bodies.",
		},
		func(ctx tool.Context, args HTTPRequestArgs) (map[string]any, error) {
			return httpRequestImpl(cfg, hc, args), nil
		},
		func(args HTTPRequestArgs) error {
			parsedURL, err := url.Parse(args.URL)
			if err != nil {
				return fmt.Errorf("invalid URL: %w", err)
			}

			if err := validateDomain(cfg, parsedURL.Host); err != nil {
				return err
			}

			method := "GET"
			if args.Method != "" {
				method = strings.ToUpper(args.Method)
			}
			if err := validateMethod(cfg, method); err != nil {
				return err
			}

			if int64(len(args.Body)) > cfg.MaxRequestSize {
				return fmt.Errorf("request body too large: %d bytes (max: %d)",
					len(args.Body), cfg.MaxRequestSize)
			}

			return tool.ValidateOutboundURL(args.URL, cfg.AllowPrivate)
		},
	)
}

// httpRequestImpl performs the request. Failures after validation are
// recoverable from the model's point of view, so they come back as an
// error mapping instead of a call error.
func httpRequestImpl(cfg *Config, hc *httpclient.Client, args HTTPRequestArgs) map[string]any {
	method := "GET"
	if args.Method != "" {
		method = strings.ToUpper(args.Method)
	}

	var body io.Reader
	if args.Body != "" {
		body = bytes.NewReader([]byte(args.Body))
	}

	req, err := http.NewRequest(method, args.URL, body)
	if err != nil {
		return errorResult(args.URL, method, fmt.Sprintf("failed to create request: %v", err))
	}

	req.Header.Set("User-Agent", cfg.UserAgent)
	for k, v := range tool.ParseJSONMap(args.Headers, nil) {
		req.Header.Set(k, fmt.Sprintf("%v", v))
	}

	resp, err := hc.Do(req)
	if err != nil {
		return errorResult(args.URL, method, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	limitedReader := io.LimitReader(resp.Body, cfg.MaxResponseSize+1)
	responseBody, err := io.ReadAll(limitedReader)
	if err != nil {
		return errorResult(args.URL, method, fmt.Sprintf("failed to read response: %v", err))
	}

	if int64(len(responseBody)) > cfg.MaxResponseSize {
		return errorResult(args.URL, method, fmt.Sprintf("response too large: exceeds %d bytes", cfg.MaxResponseSize))
	}

	respHeaders := make(map[string]string)
	for k, v := range resp.Header {
		if len(v) > 0 {
			respHeaders[k] = v[0]
		}
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300

	return map[string]any{
		"success":      success,
		"content":      string(responseBody),
		"url":          args.URL,
		"method":       method,
		"status_code":  resp.StatusCode,
		"status":       resp.Status,
		"headers":      respHeaders,
		"content_type": resp.Header.Get("Content-Type"),
		"size":         len(responseBody),
	}
}

func errorResult(url, method, msg string) map[string]any {
	return map[string]any{
		"error":  msg,
		"url":    url,
		"method": method,
	}
}

func validateDomain(cfg *Config, host string) error {
	if len(cfg.AllowedDomains) == 0 && len(cfg.DeniedDomains) == 0 {
		return nil
	}

	// Deny rules take precedence over allow rules.
	for _, denied := range cfg.DeniedDomains {
		if matchesDomain(host, denied) {
			return fmt.Errorf("domain not allowed: %s (matches deny rule: %s)", host, denied)
		}
	}

	if len(cfg.AllowedDomains) > 0 {
		for _, allowed := range cfg.AllowedDomains {
			if matchesDomain(host, allowed) {
				return nil
			}
		}
		return fmt.Errorf("domain not allowed: %s (not in allowed list)", host)
	}

	return nil
}

func validateMethod(cfg *Config, method string) error {
	if len(cfg.AllowedMethods) == 0 {
		return nil
	}

	for _, allowed := range cfg.AllowedMethods {
		if strings.EqualFold(method, allowed) {
			return nil
		}
	}

	return fmt.Errorf("HTTP method not allowed: %s (allowed: %v)", method, cfg.AllowedMethods)
}

func matchesDomain(host, pattern string) bool {
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}

	if host == pattern {
		return true
	}

	// "*.example.com" matches any subdomain.
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:]
		return strings.HasSuffix(host, suffix)
	}

	return false
}
