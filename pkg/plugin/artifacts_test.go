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
	"context"
	"encoding/base64"
	"iter"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/artifact"
	"github.com/weftworks/weft/pkg/session"
	"github.com/weftworks/weft/pkg/tool"
)

type blobTool struct{}

func (blobTool) Name() string        { return "screenshot" }
func (blobTool) Description() string { return "returns a file payload" }
func (blobTool) IsLongRunning() bool { return false }

func artifactToolContext(t *testing.T) (tool.Context, agent.Artifacts) {
	t.Helper()

	ag, err := agent.New(agent.Config{
		Name: "worker",
		Run: func(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return func(yield func(*agent.Event, error) bool) {}
		},
	})
	require.NoError(t, err)

	svc := session.InMemoryService()
	resp, err := svc.Create(context.Background(), &session.CreateRequest{
		AppName: "app", UserID: "u1", SessionID: "s1",
	})
	require.NoError(t, err)

	artifacts := artifact.For(artifact.InMemory(), artifact.Key{
		AppName: "app", UserID: "u1", SessionID: "s1",
	})
	ictx := agent.NewInvocationContext(context.Background(), agent.InvocationContextParams{
		Agent:       ag,
		Session:     resp.Session,
		Artifacts:   artifacts,
		UserContent: agent.NewTextContent("go", a2a.MessageRoleUser),
		RunConfig:   &agent.RunConfig{},
	})
	return tool.NewContext(ictx, "call-1"), artifacts
}

func TestMultimodalToolResultStoresFileAsArtifact(t *testing.T) {
	ctx, artifacts := artifactToolContext(t)
	p := newMultimodalToolResults(nil).(*multimodalToolResultsPlugin)

	result := map[string]any{
		"file_base64": base64.StdEncoding.EncodeToString([]byte("pixels")),
		"file_name":   "shot.png",
		"mime_type":   "image/png",
		"status":      "ok",
	}

	replaced, err := p.AfterTool(ctx, blobTool{}, nil, result, nil)
	require.NoError(t, err)
	require.NotNil(t, replaced)

	assert.NotContains(t, replaced, "file_base64")
	assert.Equal(t, "ok", replaced["status"])
	assert.Equal(t, "shot.png", replaced["artifact"])

	loaded, err := artifacts.Load(context.Background(), "shot.png")
	require.NoError(t, err)
	fp, ok := loaded.Part.(a2a.FilePart)
	require.True(t, ok)
	fb, ok := fp.File.(a2a.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "image/png", fb.MimeType)
	assert.Equal(t, "shot.png", fb.Name)
	assert.Equal(t, "pixels", fb.Bytes)
}

func TestMultimodalToolResultIgnoresPlainResults(t *testing.T) {
	ctx, _ := artifactToolContext(t)
	p := newMultimodalToolResults(nil).(*multimodalToolResultsPlugin)

	replaced, err := p.AfterTool(ctx, blobTool{}, nil, map[string]any{"status": "ok"}, nil)
	require.NoError(t, err)
	assert.Nil(t, replaced)
}
