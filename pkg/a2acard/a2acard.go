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

// Package a2acard produces A2A discovery cards for workflows.
//
// A workflow opts into discovery by carrying an a2a block in its
// definition. Cards are generated once at boot from the loaded
// definitions and are immutable afterwards; the server surfaces them at
// /a2a/{name} and /a2a/cards.
package a2acard

import (
	"sort"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/weftworks/weft/pkg/workflow"
)

const defaultVersion = "1.0.0"

// For builds the card for one workflow, or nil when the workflow has
// not opted in.
func For(def *workflow.Definition, baseURL string) *a2a.AgentCard {
	if def.A2A == nil {
		return nil
	}

	version := def.A2A.Version
	if version == "" {
		version = defaultVersion
	}

	skills := make([]a2a.AgentSkill, 0, len(def.A2A.Skills))
	for _, s := range def.A2A.Skills {
		skills = append(skills, a2a.AgentSkill{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Tags:        s.Tags,
		})
	}
	if len(skills) == 0 {
		skills = []a2a.AgentSkill{{
			ID:          def.Name,
			Name:        def.Name,
			Description: def.Description,
			Tags:        []string{"workflow"},
		}}
	}

	return &a2a.AgentCard{
		Name:               def.Name,
		Description:        def.Description,
		URL:                strings.TrimRight(baseURL, "/") + "/a2a/" + def.Name,
		Version:            version,
		ProtocolVersion:    "1.0",
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Skills:             skills,
		Capabilities: a2a.AgentCapabilities{
			Streaming: true,
		},
		PreferredTransport: a2a.TransportProtocolJSONRPC,
	}
}

// Catalog is the boot-time card index.
type Catalog struct {
	cards map[string]*a2a.AgentCard
}

// NewCatalog generates cards for every opted-in workflow.
func NewCatalog(entries []*workflow.Entry, baseURL string) *Catalog {
	cards := make(map[string]*a2a.AgentCard)
	for _, e := range entries {
		if card := For(e.Definition, baseURL); card != nil {
			cards[e.Definition.Name] = card
		}
	}
	return &Catalog{cards: cards}
}

// Get returns the card for a workflow name.
func (c *Catalog) Get(name string) (*a2a.AgentCard, bool) {
	card, ok := c.cards[name]
	return card, ok
}

// All returns every card in workflow-name order.
func (c *Catalog) All() []*a2a.AgentCard {
	names := make([]string, 0, len(c.cards))
	for name := range c.cards {
		names = append(names, name)
	}
	sort.Strings(names)

	cards := make([]*a2a.AgentCard, 0, len(names))
	for _, name := range names {
		cards = append(cards, c.cards[name])
	}
	return cards
}
