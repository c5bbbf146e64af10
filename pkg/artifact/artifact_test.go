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

package artifact_test

import (
	"context"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/pkg/artifact"
)

var key = artifact.Key{AppName: "reports", UserID: "u1", SessionID: "s1"}

func textPart(text string) a2a.Part {
	return a2a.TextPart{Text: text}
}

func TestInMemoryVersioning(t *testing.T) {
	svc := artifact.InMemory()
	ctx := context.Background()

	v0, err := svc.Save(ctx, key, "summary.txt", textPart("first"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), v0)

	v1, err := svc.Save(ctx, key, "summary.txt", textPart("second"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	latest, err := svc.Load(ctx, key, "summary.txt", -1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest.Version)
	assert.Equal(t, "second", latest.Part.(a2a.TextPart).Text)

	first, err := svc.Load(ctx, key, "summary.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, "first", first.Part.(a2a.TextPart).Text)

	_, err = svc.Load(ctx, key, "summary.txt", 7)
	require.Error(t, err)
}

func TestInMemoryUserScopeSharedAcrossSessions(t *testing.T) {
	svc := artifact.InMemory()
	ctx := context.Background()

	_, err := svc.Save(ctx, key, "user:profile.json", textPart("shared"))
	require.NoError(t, err)

	otherSession := artifact.Key{AppName: "reports", UserID: "u1", SessionID: "s2"}
	loaded, err := svc.Load(ctx, otherSession, "user:profile.json", -1)
	require.NoError(t, err)
	assert.Equal(t, "shared", loaded.Part.(a2a.TextPart).Text)

	// A session-scoped artifact stays invisible elsewhere.
	_, err = svc.Save(ctx, key, "draft.txt", textPart("mine"))
	require.NoError(t, err)
	_, err = svc.Load(ctx, otherSession, "draft.txt", -1)
	require.Error(t, err)
}

func TestScopedAdapter(t *testing.T) {
	svc := artifact.InMemory()
	arts := artifact.For(svc, key)
	ctx := context.Background()

	saved, err := arts.Save(ctx, "out.txt", textPart("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), saved.Version)

	listed, err := arts.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed.Artifacts, 1)
	assert.Equal(t, "out.txt", listed.Artifacts[0].Name)

	loaded, err := arts.Load(ctx, "out.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", loaded.Part.(a2a.TextPart).Text)
}

func TestFileServiceRoundTrip(t *testing.T) {
	svc, err := artifact.NewFileService(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Save(ctx, key, "report.md", textPart("v0"))
	require.NoError(t, err)
	v1, err := svc.Save(ctx, key, "report.md", textPart("v1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	loaded, err := svc.Load(ctx, key, "report.md", -1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Equal(t, "v1", loaded.Part.(a2a.TextPart).Text)

	infos, err := svc.List(ctx, key)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "report.md", infos[0].Name)
	assert.Equal(t, int64(1), infos[0].Version)
}

func TestFileServicePreservesDataParts(t *testing.T) {
	svc, err := artifact.NewFileService(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	part := a2a.DataPart{Data: map[string]any{"rows": float64(3)}}
	_, err = svc.Save(ctx, key, "stats", part)
	require.NoError(t, err)

	loaded, err := svc.Load(ctx, key, "stats", -1)
	require.NoError(t, err)
	data, ok := loaded.Part.(a2a.DataPart)
	require.True(t, ok)
	assert.Equal(t, float64(3), data.Data["rows"])
}

func TestDisabledServiceErrors(t *testing.T) {
	svc := artifact.Disabled()
	ctx := context.Background()

	_, err := svc.Save(ctx, key, "x", textPart("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")

	_, err = svc.Load(ctx, key, "x", -1)
	require.Error(t, err)

	_, err = svc.List(ctx, key)
	require.Error(t, err)
}
