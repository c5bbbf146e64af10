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

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/mapstructure"

	"github.com/weftworks/weft/pkg/config/provider"
)

// watchDebounce coalesces bursts of change notifications from editors
// that write files in several steps.
const watchDebounce = 300 * time.Millisecond

// envOverrides maps WEFT_-prefixed environment variables to config
// paths. A fixed table avoids guessing where underscores split.
var envOverrides = map[string]string{
	"WEFT_SERVER_HOST":           "server.host",
	"WEFT_SERVER_PORT":           "server.port",
	"WEFT_BASE_URL":              "server.base_url",
	"WEFT_WORKFLOWS_DIR":         "workflows_dir",
	"WEFT_DATA_DIR":              "data_dir",
	"WEFT_TIMEZONE":              "timezone",
	"WEFT_LOG_LEVEL":             "logging.level",
	"WEFT_LOG_FORMAT":            "logging.format",
	"WEFT_LOG_FILE":              "logging.file",
	"WEFT_OBSERVABILITY_ENABLED": "observability.enabled",
	"WEFT_DEFAULT_PROVIDER":      "models.default_provider",
}

var envExpr = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes ${VAR} and ${VAR:-default} references in raw
// config bytes. Unset variables without a default expand to the empty
// string.
func ExpandEnv(data []byte) []byte {
	return envExpr.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := envExpr.FindSubmatch(match)
		if v, ok := os.LookupEnv(string(groups[1])); ok {
			return []byte(v)
		}
		return groups[2]
	})
}

// LoadDotenv loads the nearest .env file without overwriting variables
// that are already set. When explicit is empty, directories from start
// upward to the filesystem root are searched and the first hit wins. A
// missing file is not an error.
func LoadDotenv(start, explicit string) error {
	if explicit != "" {
		if err := godotenv.Load(explicit); err != nil {
			return fmt.Errorf("load env file %s: %w", explicit, err)
		}
		return nil
	}

	dir, err := filepath.Abs(start)
	if err != nil {
		return err
	}
	for {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			return godotenv.Load(candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

// Decode merges raw YAML bytes over the defaults and strictly decodes
// the result. Unknown keys fail with their paths.
func Decode(data []byte) (*Config, error) {
	parsed, err := yaml.Parser().Unmarshal(ExpandEnv(data))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaultMap(), "."), nil); err != nil {
		return nil, err
	}
	if err := k.Load(confmap.Provider(parsed, ""), nil); err != nil {
		return nil, fmt.Errorf("merge config: %w", err)
	}
	for envVar, path := range envOverrides {
		if v, ok := os.LookupEnv(envVar); ok {
			if err := k.Set(path, v); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "koanf",
		Result:           cfg,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(k.Raw()); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultMap flattens Default() through its koanf tags so source keys
// merge over it path by path.
func defaultMap() map[string]interface{} {
	var out map[string]interface{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "koanf",
		Result:  &out,
	})
	if err != nil {
		panic(err)
	}
	if err := dec.Decode(Default()); err != nil {
		panic(err)
	}
	return out
}

// Loader reads the platform config from one source and can watch it for
// changes.
type Loader struct {
	provider provider.Provider
}

// NewLoader creates a loader over a source.
func NewLoader(p provider.Provider) *Loader {
	return &Loader{provider: p}
}

// Load reads and decodes the current configuration.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	data, err := l.provider.Load(ctx)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Watch reloads the config whenever the source changes and hands every
// successfully decoded config to onChange. A source revision that fails
// to decode is logged and skipped, keeping the previous config in
// effect. Watch blocks until the context is canceled.
func (l *Loader) Watch(ctx context.Context, onChange func(*Config)) error {
	ch, err := l.provider.Watch(ctx)
	if err != nil {
		return err
	}
	if ch == nil {
		return fmt.Errorf("%s config source does not support watching", l.provider.Type())
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Stop()
				timer.Reset(watchDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			cfg, err := l.Load(ctx)
			if err != nil {
				slog.Warn("Config reload failed, keeping previous configuration", "error", err)
				continue
			}
			slog.Info("Configuration reloaded")
			onChange(cfg)
		}
	}
}

// Close releases the underlying source.
func (l *Loader) Close() error {
	return l.provider.Close()
}
