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

// Package memory stores completed session transcripts for cross-session
// recall.
//
// When a workflow's runtime enables the service, the runner feeds each
// finished session in; model agents reach the store through the
// load_memory tool and plugins through agent.Memory. Search is keyword
// matching over event text, scoped to (app, user).
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/weftworks/weft/pkg/agent"
)

// Service stores transcripts for all users. Implementations must be
// safe for concurrent use.
type Service interface {
	// AddSession indexes a session's events. Re-adding the same session
	// replaces its entries.
	AddSession(ctx context.Context, sess agent.Session) error

	// Search returns scored matches for the user's sessions.
	Search(ctx context.Context, appName, userID, query string) (*agent.MemorySearchResponse, error)
}

// For binds a service to one invocation's scope as agent.Memory.
func For(svc Service, appName, userID string) agent.Memory {
	return &scoped{svc: svc, appName: appName, userID: userID}
}

type scoped struct {
	svc     Service
	appName string
	userID  string
}

func (s *scoped) AddSession(ctx context.Context, sess agent.Session) error {
	return s.svc.AddSession(ctx, sess)
}

func (s *scoped) Search(ctx context.Context, query string) (*agent.MemorySearchResponse, error) {
	return s.svc.Search(ctx, s.appName, s.userID, query)
}

var _ agent.Memory = (*scoped)(nil)

// Disabled returns the service used when memory_service is "none":
// sessions are dropped and every search comes back empty.
func Disabled() Service {
	return disabledService{}
}

type disabledService struct{}

func (disabledService) AddSession(context.Context, agent.Session) error { return nil }

func (disabledService) Search(context.Context, string, string, string) (*agent.MemorySearchResponse, error) {
	return &agent.MemorySearchResponse{}, nil
}

// maxResults caps what a single search returns.
const maxResults = 10

// InMemory returns a keyword-indexed transcript store.
func InMemory() Service {
	return &memoryService{store: make(map[userKey]map[string][]entry)}
}

type userKey struct {
	appName string
	userID  string
}

// entry is one indexed event.
type entry struct {
	sessionID string
	author    string
	content   string
	timestamp time.Time
	words     map[string]struct{}
}

type memoryService struct {
	mu    sync.RWMutex
	store map[userKey]map[string][]entry // user -> session -> entries
}

func (s *memoryService) AddSession(ctx context.Context, sess agent.Session) error {
	if sess == nil {
		return nil
	}

	var entries []entry
	for ev := range sess.Events().All() {
		if ev.Partial || ev.Message == nil {
			continue
		}
		text := messageText(ev.Message)
		if text == "" {
			continue
		}
		entries = append(entries, entry{
			sessionID: sess.ID(),
			author:    ev.Author,
			content:   text,
			timestamp: ev.Timestamp,
			words:     tokenize(text),
		})
	}
	if len(entries) == 0 {
		return nil
	}

	uk := userKey{appName: sess.AppName(), userID: sess.UserID()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store[uk] == nil {
		s.store[uk] = make(map[string][]entry)
	}
	s.store[uk][sess.ID()] = entries
	return nil
}

func (s *memoryService) Search(ctx context.Context, appName, userID, query string) (*agent.MemorySearchResponse, error) {
	resp := &agent.MemorySearchResponse{}
	queryWords := tokenize(query)
	if len(queryWords) == 0 {
		return resp, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entries := range s.store[userKey{appName: appName, userID: userID}] {
		for _, e := range entries {
			score := overlap(queryWords, e.words)
			if score == 0 {
				continue
			}
			resp.Results = append(resp.Results, agent.MemoryResult{
				Content: e.content,
				Score:   score,
				Metadata: map[string]any{
					"session_id": e.sessionID,
					"author":     e.author,
					"timestamp":  e.timestamp,
				},
			})
		}
	}

	sort.Slice(resp.Results, func(i, j int) bool {
		return resp.Results[i].Score > resp.Results[j].Score
	})
	if len(resp.Results) > maxResults {
		resp.Results = resp.Results[:maxResults]
	}
	return resp, nil
}

// tokenize splits text into lowercase words, dropping punctuation and
// words too short to discriminate.
func tokenize(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if len(word) > 2 {
			words[word] = struct{}{}
		}
	}
	return words
}

// overlap counts query words present in the document.
func overlap(query, doc map[string]struct{}) float64 {
	var score float64
	for word := range query {
		if _, ok := doc[word]; ok {
			score++
		}
	}
	return score
}

func messageText(msg *a2a.Message) string {
	var text strings.Builder
	for _, part := range msg.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			text.WriteString(tp.Text)
		}
	}
	return text.String()
}

var _ Service = (*memoryService)(nil)
