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

package a2acard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/a2acard"
	"github.com/weftworks/weft/pkg/workflow"
)

func TestForOptedInWorkflow(t *testing.T) {
	def := &workflow.Definition{
		Name:        "support",
		Description: "Support triage",
		A2A: &workflow.A2AConfig{
			Version: "2.1.0",
			Skills: []workflow.SkillDef{{
				ID:          "triage",
				Name:        "Triage",
				Description: "Classify support requests",
				Tags:        []string{"support"},
			}},
		},
	}

	card := a2acard.For(def, "http://localhost:8080/")
	require.NotNil(t, card)
	assert.Equal(t, "support", card.Name)
	assert.Equal(t, "http://localhost:8080/a2a/support", card.URL)
	assert.Equal(t, "2.1.0", card.Version)
	require.Len(t, card.Skills, 1)
	assert.Equal(t, "triage", card.Skills[0].ID)
}

func TestForWithoutOptInReturnsNil(t *testing.T) {
	def := &workflow.Definition{Name: "internal"}
	assert.Nil(t, a2acard.For(def, "http://localhost:8080"))
}

func TestDefaultSkillAndVersion(t *testing.T) {
	def := &workflow.Definition{
		Name:        "echo",
		Description: "Echoes input",
		A2A:         &workflow.A2AConfig{},
	}

	card := a2acard.For(def, "http://localhost:8080")
	require.NotNil(t, card)
	assert.Equal(t, "1.0.0", card.Version)
	require.Len(t, card.Skills, 1)
	assert.Equal(t, "echo", card.Skills[0].ID)
}

func TestCatalogIncludesOnlyOptedIn(t *testing.T) {
	entries := []*workflow.Entry{
		{Definition: &workflow.Definition{Name: "public", A2A: &workflow.A2AConfig{}}},
		{Definition: &workflow.Definition{Name: "private"}},
	}

	catalog := a2acard.NewCatalog(entries, "http://localhost:8080")
	assert.Len(t, catalog.All(), 1)

	_, ok := catalog.Get("public")
	assert.True(t, ok)
	_, ok = catalog.Get("private")
	assert.False(t, ok)
}
