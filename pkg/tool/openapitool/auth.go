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
	"fmt"
	"net/http"
	"os"
)

// Auth describes how every call of an OpenAPI toolset authenticates.
//
// Credentials resolve at hydration time. A named environment variable
// that is unset resolves to the empty string rather than failing the
// boot: the workflow may never exercise the operation, and if it does
// the upstream API's 401 comes back as tool result data the model can
// see.
type Auth struct {
	// Type is one of "none", "bearer", "apikey" or "oauth2".
	Type string

	// Token is the literal bearer/oauth2 token. TokenEnv names an
	// environment variable holding it instead.
	Token    string
	TokenEnv string

	// Key is the literal API key. KeyEnv names an environment variable
	// holding it instead.
	Key    string
	KeyEnv string

	// Header is the header carrying the API key. Defaults to X-API-Key.
	Header string
}

// authApplier stamps credentials onto an outgoing request.
type authApplier func(req *http.Request)

// resolveAuth validates the auth config and returns the applier.
func resolveAuth(a Auth) (authApplier, error) {
	switch a.Type {
	case "", "none":
		return func(*http.Request) {}, nil

	case "bearer", "oauth2":
		// oauth2 uses a pre-issued access token; the refresh dance is
		// the operator's problem.
		token := a.Token
		if token == "" && a.TokenEnv != "" {
			token = os.Getenv(a.TokenEnv)
		}
		return func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+token)
		}, nil

	case "apikey":
		key := a.Key
		if key == "" && a.KeyEnv != "" {
			key = os.Getenv(a.KeyEnv)
		}
		header := a.Header
		if header == "" {
			header = "X-API-Key"
		}
		return func(req *http.Request) {
			req.Header.Set(header, key)
		}, nil

	default:
		return nil, fmt.Errorf("unknown openapi auth type %q", a.Type)
	}
}
