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

package plugin

import (
	"errors"
	"fmt"
	"sync"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/model"
)

// ErrRetry signals from an AfterModel hook that the agent should repeat
// the model call. The model agent honors it up to its own retry bound;
// other hosts may ignore it.
var ErrRetry = errors.New("plugin requested model retry")

// reflectAndRetryPlugin asks the model agent to retry a failed call,
// once per invocation, with the failure reflected back to the model.
type reflectAndRetryPlugin struct {
	Base

	maxRetries int

	mu   sync.Mutex
	used int
}

func newReflectAndRetry(cfg map[string]any) Plugin {
	return &reflectAndRetryPlugin{
		Base:       Base{PluginName: "reflect_and_retry"},
		maxRetries: cfgInt(cfg, "max_retries", 1),
	}
}

func (p *reflectAndRetryPlugin) AfterModel(ctx agent.CallbackContext, resp *model.Response, err error) (*model.Response, error) {
	failed := err != nil || (resp != nil && resp.ErrorCode != "")
	if !failed {
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used >= p.maxRetries {
		return nil, nil
	}
	p.used++

	reason := "model call failed"
	if err != nil {
		reason = err.Error()
	} else if resp.ErrorMessage != "" {
		reason = resp.ErrorMessage
	}
	return nil, fmt.Errorf("%w: %s", ErrRetry, reason)
}
