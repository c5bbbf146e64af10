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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/weftworks/weft/pkg/callbacks"
	"github.com/weftworks/weft/pkg/config"
	"github.com/weftworks/weft/pkg/config/provider"
	"github.com/weftworks/weft/pkg/driver"
	"github.com/weftworks/weft/pkg/hydrator"
	"github.com/weftworks/weft/pkg/logger"
	"github.com/weftworks/weft/pkg/model"
	"github.com/weftworks/weft/pkg/model/anthropic"
	"github.com/weftworks/weft/pkg/model/openai"
	"github.com/weftworks/weft/pkg/secrets"
	"github.com/weftworks/weft/pkg/tool"
	"github.com/weftworks/weft/pkg/tool/controltool"
	"github.com/weftworks/weft/pkg/tool/httptool"
	"github.com/weftworks/weft/pkg/tool/jsontool"
	"github.com/weftworks/weft/pkg/tool/memorytool"
)

const defaultOllamaBaseURL = "http://localhost:11434/v1"

// platform is the booted process: config plus every resolver the
// hydrator and driver need.
type platform struct {
	cfg      *config.Config
	loader   *config.Loader
	secrets  *secrets.Store
	models   *model.Resolver
	tools    *tool.Registry
	hydrator *hydrator.Hydrator
	driver   *driver.Driver
}

// loadConfig reads the platform config from the source the CLI selects.
// A missing --config with a file source yields the defaults so
// zero-config runs work.
func loadConfig(ctx context.Context, cli *CLI) (*config.Config, *config.Loader, error) {
	srcType, err := provider.ParseType(cli.ConfigSource)
	if err != nil {
		return nil, nil, err
	}
	if cli.Config == "" {
		if srcType != provider.TypeFile {
			return nil, nil, fmt.Errorf("--config is required for the %s config source", srcType)
		}
		return config.Default(), nil, nil
	}

	p, err := provider.New(provider.Config{
		Type:      srcType,
		Path:      cli.Config,
		Endpoints: cli.ConfigEndpoints,
	})
	if err != nil {
		return nil, nil, err
	}
	loader := config.NewLoader(p)
	cfg, err := loader.Load(ctx)
	if err != nil {
		loader.Close()
		return nil, nil, err
	}
	return cfg, loader, nil
}

// initLogger applies logging settings, CLI flags winning over config.
func initLogger(cli *CLI, cfg *config.Config) (func(), error) {
	levelStr := cfg.Logging.Level
	if cli.LogLevel != "" {
		levelStr = cli.LogLevel
	}
	format := cfg.Logging.Format
	if cli.LogFormat != "" {
		format = cli.LogFormat
	}
	logFile := cfg.Logging.File
	if cli.LogFile != "" {
		logFile = cli.LogFile
	}

	level, _ := logger.ParseLevel(levelStr)
	output := os.Stderr
	cleanup := func() {}
	if logFile != "" {
		file, closeFile, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		output = file
		cleanup = closeFile
	}
	logger.Init(level, output, format)
	return cleanup, nil
}

// boot assembles the platform from a loaded config: dotenv, the secret
// store, model factories, the builtin tool catalog, the hydrator and
// the driver.
func boot(cli *CLI, cfg *config.Config, loader *config.Loader) (*platform, error) {
	if err := config.LoadDotenv(cfg.WorkflowsDir, cli.EnvFile); err != nil {
		slog.Warn("Dotenv loading failed", "error", err)
	}

	store := secrets.NewStore()
	if err := store.SetAll(cfg.Secrets); err != nil {
		return nil, fmt.Errorf("seed secret store: %w", err)
	}
	store.Freeze()

	tz, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	tools, err := builtinRegistry()
	if err != nil {
		return nil, err
	}

	p := &platform{
		cfg:     cfg,
		loader:  loader,
		secrets: store,
		models:  modelResolver(cfg, store),
		tools:   tools,
		driver:  driver.New(driver.Options{Timezone: tz, DataDir: cfg.DataDir}),
	}
	p.hydrator = hydrator.New(hydrator.Options{
		Models:     p.models,
		Tools:      p.tools,
		Callbacks:  callbacks.Default(),
		Secrets:    store,
		MCPServers: cfg.MCPToolsets(),
	})
	return p, nil
}

func (p *platform) Close() error {
	var errs []error
	if err := p.driver.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.models.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.loader != nil {
		if err := p.loader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("platform shutdown: %v", errs)
	}
	return nil
}

// modelResolver wires the provider factories. Credentials resolve from
// the conventional environment variables with the secret store as
// fallback; a missing key surfaces on first request, not at boot.
func modelResolver(cfg *config.Config, store *secrets.Store) *model.Resolver {
	r := model.NewResolver(model.Provider(cfg.Models.DefaultProvider))

	r.Register(model.ProviderOpenAI, func(name string) (model.LLM, error) {
		pc := cfg.Models.OpenAI
		return openai.New(openai.Config{
			APIKey:     model.APIKey("OPENAI_API_KEY", store),
			Model:      name,
			BaseURL:    pc.BaseURL,
			Timeout:    pc.Timeout,
			MaxRetries: pc.MaxRetries,
		})
	})

	r.Register(model.ProviderAnthropic, func(name string) (model.LLM, error) {
		pc := cfg.Models.Anthropic
		return anthropic.New(anthropic.Config{
			APIKey:     model.APIKey("ANTHROPIC_API_KEY", store),
			Model:      name,
			BaseURL:    pc.BaseURL,
			Timeout:    pc.Timeout,
			MaxRetries: pc.MaxRetries,
		})
	})

	r.Register(model.ProviderOllama, func(name string) (model.LLM, error) {
		pc := cfg.Models.Ollama
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		return openai.New(openai.Config{
			Provider:   model.ProviderOllama,
			Model:      name,
			BaseURL:    baseURL,
			Timeout:    pc.Timeout,
			MaxRetries: pc.MaxRetries,
		})
	})

	return r
}

// builtinRegistry assembles the platform tool catalog. Custom tools
// registered later shadow these by name.
func builtinRegistry() (*tool.Registry, error) {
	r := tool.NewRegistry()
	r.RegisterBuiltin(controltool.ExitLoop())
	r.RegisterBuiltin(controltool.Escalate())
	r.RegisterBuiltin(memorytool.LoadMemory())
	r.RegisterBuiltin(tool.Declared("google_search",
		"Searches the web. Executed natively by providers that support it."))

	httpRequest, err := httptool.New(nil)
	if err != nil {
		return nil, err
	}
	r.RegisterBuiltin(httpRequest)

	jsonPath, err := jsontool.NewJSONPath()
	if err != nil {
		return nil, err
	}
	r.RegisterBuiltin(jsonPath)

	readState, err := jsontool.NewReadState()
	if err != nil {
		return nil, err
	}
	r.RegisterBuiltin(readState)

	return r, nil
}
