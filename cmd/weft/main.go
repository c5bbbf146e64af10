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

// Command weft runs declarative agent workflows.
//
// Usage:
//
//	weft run <workflow> "<message>"
//	weft serve --watch
//	weft validate workflows/support/workflow.yaml
//	weft init triage
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/weftworks/weft"
	"github.com/weftworks/weft/pkg/workflow"
)

// Exit codes: 0 success, 1 runtime failure, 2 definition or config
// validation failure.
const (
	exitRuntimeError    = 1
	exitValidationError = 2
)

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Run a workflow to completion and print the result."`
	Serve    ServeCmd    `cmd:"" help:"Serve workflows over HTTP."`
	Validate ValidateCmd `cmd:"" help:"Validate workflow definitions."`
	List     ListCmd     `cmd:"" help:"List workflows in the workflows directory."`
	Init     InitCmd     `cmd:"" help:"Scaffold a new workflow package."`
	Schema   SchemaCmd   `cmd:"" help:"Print the JSON Schema of workflow.yaml."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config          string   `short:"c" help:"Platform config path (file path, or key for remote sources)." env:"WEFT_CONFIG"`
	ConfigSource    string   `help:"Config source: file, consul, etcd or zookeeper." default:"file" env:"WEFT_CONFIG_SOURCE"`
	ConfigEndpoints []string `help:"Remote config source endpoints." env:"WEFT_CONFIG_ENDPOINTS"`
	EnvFile         string   `help:"Explicit .env path (default: nearest .env upward from the workflows dir)." env:"WEFT_ENV_FILE"`
	LogLevel        string   `help:"Log level (debug, info, warn, error)." env:"WEFT_LOG_LEVEL"`
	LogFormat       string   `help:"Log format (simple, verbose)." env:"WEFT_LOG_FORMAT"`
	LogFile         string   `help:"Log file path (empty = stderr)." env:"WEFT_LOG_FILE"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Println(weft.GetVersion())
	return nil
}

// isValidationFailure classifies errors onto exit code 2.
func isValidationFailure(err error) bool {
	var ve *workflow.ValidationError
	var he *workflow.HydrationError
	return errors.As(err, &ve) || errors.As(err, &he)
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("weft"),
		kong.Description("weft - declarative agent workflow platform"),
		kong.UsageOnError(),
	)

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "weft: %v\n", err)
		if isValidationFailure(err) {
			os.Exit(exitValidationError)
		}
		os.Exit(exitRuntimeError)
	}
}
