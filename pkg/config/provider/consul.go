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

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/consul/api"
)

const consulWaitTime = 5 * time.Minute

// Consul loads configuration from a Consul KV key and watches it with
// blocking queries.
type Consul struct {
	client *api.Client
	key    string
}

// NewConsul creates a consul provider. Endpoints defaults to the local
// agent.
func NewConsul(endpoints []string, key string) (*Consul, error) {
	cfg := api.DefaultConfig()
	if len(endpoints) > 0 {
		cfg.Address = endpoints[0]
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	return &Consul{client: client, key: key}, nil
}

func (p *Consul) Type() Type {
	return TypeConsul
}

func (p *Consul) Load(ctx context.Context) ([]byte, error) {
	pair, _, err := p.client.KV().Get(p.key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("read consul key %s: %w", p.key, err)
	}
	if pair == nil {
		return nil, fmt.Errorf("consul key %s not found", p.key)
	}
	return pair.Value, nil
}

func (p *Consul) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	go func() {
		var lastIndex uint64
		for ctx.Err() == nil {
			opts := &api.QueryOptions{WaitIndex: lastIndex, WaitTime: consulWaitTime}
			pair, meta, err := p.client.KV().Get(p.key, opts.WithContext(ctx))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("Consul config watch error", "key", p.key, "error", err)
				time.Sleep(time.Second)
				continue
			}
			if meta == nil || pair == nil {
				time.Sleep(time.Second)
				continue
			}
			if lastIndex != 0 && meta.LastIndex != lastIndex {
				select {
				case ch <- struct{}{}:
				default:
				}
			}
			lastIndex = meta.LastIndex
		}
	}()
	return ch, nil
}

func (p *Consul) Close() error {
	return nil
}

var _ Provider = (*Consul)(nil)
