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
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/tool"
)

// saveFilesAsArtifactsPlugin persists file parts carried by events into
// the invocation's artifact service.
type saveFilesAsArtifactsPlugin struct {
	Base
}

func newSaveFilesAsArtifacts(cfg map[string]any) Plugin {
	return &saveFilesAsArtifactsPlugin{Base{PluginName: "save_files_as_artifacts"}}
}

func (p *saveFilesAsArtifactsPlugin) OnEvent(ctx agent.ReadonlyContext, ev *agent.Event) {
	if ev == nil || ev.Partial || ev.Message == nil {
		return
	}
	cbCtx, ok := ctx.(agent.CallbackContext)
	if !ok || cbCtx.Artifacts() == nil {
		return
	}

	for i, part := range ev.Message.Parts {
		fp, ok := part.(a2a.FilePart)
		if !ok {
			continue
		}
		name := fileName(fp)
		if name == "" {
			name = fmt.Sprintf("%s-part-%d", ev.ID, i)
		}
		resp, err := cbCtx.Artifacts().Save(ctx, name, fp)
		if err != nil {
			slog.Warn("Failed to save event file as artifact", "file", name, "error", err)
			continue
		}
		if ev.Actions.ArtifactDelta == nil {
			ev.Actions.ArtifactDelta = make(map[string]int64)
		}
		ev.Actions.ArtifactDelta[resp.Name] = resp.Version
	}
}

// multimodalToolResultsPlugin lifts inline binary payloads out of tool
// results: base64 file content becomes a stored artifact plus a
// reference, so large blobs never round-trip through model prompts.
type multimodalToolResultsPlugin struct {
	Base
}

func newMultimodalToolResults(cfg map[string]any) Plugin {
	return &multimodalToolResultsPlugin{Base{PluginName: "multimodal_tool_results"}}
}

func (p *multimodalToolResultsPlugin) AfterTool(ctx tool.Context, t tool.Tool, args, result map[string]any, err error) (map[string]any, error) {
	if err != nil || result == nil {
		return nil, nil
	}
	encoded, _ := result["file_base64"].(string)
	if encoded == "" {
		return nil, nil
	}
	if ctx.Artifacts() == nil {
		return nil, nil
	}

	data, decodeErr := base64.StdEncoding.DecodeString(encoded)
	if decodeErr != nil {
		return nil, nil
	}

	name, _ := result["file_name"].(string)
	if name == "" {
		name = t.Name() + "-" + ctx.FunctionCallID()
	}
	mimeType, _ := result["mime_type"].(string)

	resp, saveErr := ctx.Artifacts().Save(ctx, name, a2a.FilePart{
		File: a2a.FileBytes{
			FileMeta: a2a.FileMeta{MimeType: mimeType, Name: name},
			Bytes:    string(data),
		},
	})
	if saveErr != nil {
		slog.Warn("Failed to store multimodal tool result", "tool", t.Name(), "error", saveErr)
		return nil, nil
	}

	replaced := make(map[string]any, len(result))
	for k, v := range result {
		if k == "file_base64" {
			continue
		}
		replaced[k] = v
	}
	replaced["artifact"] = resp.Name
	replaced["artifact_version"] = resp.Version
	return replaced, nil
}

func fileName(fp a2a.FilePart) string {
	switch f := fp.File.(type) {
	case a2a.FileBytes:
		return f.Name
	case a2a.FileURI:
		return f.Name
	}
	return ""
}
