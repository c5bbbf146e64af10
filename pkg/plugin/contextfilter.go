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
	"log/slog"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/pkoukk/tiktoken-go"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/model"
)

// contextFilterPlugin trims the oldest conversation turns from model
// requests until the estimated prompt fits the configured token budget.
// The most recent message is always kept. Requires max_tokens; without
// it the factory produces no plugin.
type contextFilterPlugin struct {
	Base

	maxTokens int
	encoding  *tiktoken.Tiktoken
}

func newContextFilter(cfg map[string]any) Plugin {
	maxTokens := cfgInt(cfg, "max_tokens", 0)
	if maxTokens <= 0 {
		return nil
	}

	encoding, err := tiktoken.GetEncoding(cfgString(cfg, "encoding", "cl100k_base"))
	if err != nil {
		slog.Warn("context_filter disabled: unknown token encoding", "error", err)
		return nil
	}

	return &contextFilterPlugin{
		Base:      Base{PluginName: "context_filter"},
		maxTokens: maxTokens,
		encoding:  encoding,
	}
}

func (p *contextFilterPlugin) BeforeModel(ctx agent.CallbackContext, req *model.Request) (*model.Response, error) {
	if len(req.Messages) <= 1 {
		return nil, nil
	}

	budget := p.maxTokens - p.countText(req.SystemInstruction)
	total := 0
	counts := make([]int, len(req.Messages))
	for i, msg := range req.Messages {
		counts[i] = p.countMessage(msg)
		total += counts[i]
	}

	drop := 0
	for total > budget && drop < len(req.Messages)-1 {
		total -= counts[drop]
		drop++
	}
	if drop > 0 {
		slog.Debug("Trimmed conversation context",
			"agent", ctx.AgentName(),
			"dropped_messages", drop,
			"budget_tokens", p.maxTokens)
		req.Messages = req.Messages[drop:]
	}
	return nil, nil
}

func (p *contextFilterPlugin) countMessage(msg *a2a.Message) int {
	if msg == nil {
		return 0
	}
	total := 0
	for _, part := range msg.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			total += p.countText(tp.Text)
		}
	}
	// Fixed overhead per message for role and framing.
	return total + 4
}

func (p *contextFilterPlugin) countText(text string) int {
	if text == "" {
		return 0
	}
	return len(p.encoding.Encode(text, nil, nil))
}
