// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package cli parses the server's command-line flags into a validated
// options map. This is the boundary the core treats as an external
// collaborator, the same role internal/config plays for the INI file.
package cli

import (
	"fmt"

	flag "github.com/spf13/pflag"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// Options is the validated result of parsing argv.
type Options struct {
	ConfigPath string
	Help       bool
	ShowVer    bool
}

// Parse parses args (excluding the program name) into Options. It never
// calls os.Exit: help/version handling is the caller's responsibility, so
// that this package stays unit-testable.
func Parse(args []string) (*Options, error) {
	fs := flag.NewFlagSet("nvhttpd", flag.ContinueOnError)
	fs.Usage = func() {}

	configPath := fs.StringP("config", "c", "", "path to the INI configuration file")
	help := fs.BoolP("help", "h", false, "show usage and exit")
	version := fs.BoolP("version", "v", false, "show version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts := &Options{
		ConfigPath: *configPath,
		Help:       *help,
		ShowVer:    *version,
	}
	if !opts.Help && !opts.ShowVer && opts.ConfigPath == "" {
		return nil, fmt.Errorf("cli: -c <path> is required")
	}
	return opts, nil
}
