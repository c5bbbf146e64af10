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

	"github.com/go-zookeeper/zk"
)

// Zookeeper loads configuration from a znode and re-arms a data watch
// after each change notification.
type Zookeeper struct {
	conn *zk.Conn
	path string
}

// NewZookeeper creates a zookeeper provider. Endpoints defaults to the
// conventional local endpoint.
func NewZookeeper(endpoints []string, path string) (*Zookeeper, error) {
	if len(endpoints) == 0 {
		endpoints = []string{"localhost:2181"}
	}
	conn, _, err := zk.Connect(endpoints, 10*time.Second, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("connect to zookeeper: %w", err)
	}
	return &Zookeeper{conn: conn, path: path}, nil
}

func (p *Zookeeper) Type() Type {
	return TypeZookeeper
}

func (p *Zookeeper) Load(ctx context.Context) ([]byte, error) {
	data, _, err := p.conn.Get(p.path)
	if err != nil {
		return nil, fmt.Errorf("read zookeeper node %s: %w", p.path, err)
	}
	return data, nil
}

func (p *Zookeeper) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	go func() {
		for ctx.Err() == nil {
			// GetW arms a one-shot watch; re-arm after every event.
			_, _, events, err := p.conn.GetW(p.path)
			if err != nil {
				slog.Warn("Zookeeper config watch error", "path", p.path, "error", err)
				time.Sleep(time.Second)
				continue
			}

			select {
			case <-ctx.Done():
				return
			case event := <-events:
				switch event.Type {
				case zk.EventNodeDataChanged:
					select {
					case ch <- struct{}{}:
					default:
					}
				case zk.EventNodeDeleted:
					slog.Warn("Zookeeper config node deleted", "path", p.path)
					return
				}
			}
		}
	}()
	return ch, nil
}

func (p *Zookeeper) Close() error {
	p.conn.Close()
	return nil
}

var _ Provider = (*Zookeeper)(nil)
