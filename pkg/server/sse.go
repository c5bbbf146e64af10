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

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/weftworks/weft/pkg/agent"
	"github.com/weftworks/weft/pkg/driver"
	"github.com/weftworks/weft/pkg/metrics"
)

// ssePayload is the wire form of one event on the stream endpoint.
type ssePayload struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Author       string         `json:"author,omitempty"`
	Content      string         `json:"content,omitempty"`
	Partial      bool           `json:"partial,omitempty"`
	TurnComplete bool           `json:"turn_complete,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StateDelta   map[string]any `json:"state_delta,omitempty"`
}

// sseDone closes the stream with the session handle and aggregated
// usage.
type sseDone struct {
	SessionID string               `json:"session_id"`
	Usage     metrics.UsageSummary `json:"usage"`
	Error     string               `json:"error,omitempty"`
}

func toPayload(ev *agent.Event) ssePayload {
	return ssePayload{
		ID:           ev.ID,
		Timestamp:    ev.Timestamp,
		Author:       ev.Author,
		Content:      ev.TextContent(),
		Partial:      ev.Partial,
		TurnComplete: ev.TurnComplete,
		ErrorCode:    ev.ErrorCode,
		ErrorMessage: ev.ErrorMessage,
		StateDelta:   ev.Actions.StateDelta,
	}
}

// serveSSE drives the stream and writes each event as a server-sent
// "event" message, closing with a "done" message carrying usage. The
// returned error is the run failure, if any; transport-level write
// failures only end the stream.
func serveSSE(w http.ResponseWriter, stream *driver.Stream) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported by connection")
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var runErr error
	for ev, err := range stream.Events {
		if err != nil {
			runErr = err
			break
		}
		if ev == nil {
			continue
		}
		if writeSSE(w, "event", toPayload(ev)) != nil {
			return nil
		}
		flusher.Flush()
	}

	done := sseDone{SessionID: stream.SessionID, Usage: stream.Usage()}
	if runErr != nil {
		done.Error = runErr.Error()
	}
	if writeSSE(w, "done", done) == nil {
		flusher.Flush()
	}
	return runErr
}

func writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
