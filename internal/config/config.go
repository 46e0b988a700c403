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

// Package config reads the server's INI configuration file and populates a
// validated ServerConfig. This is the boundary the core treats as an
// external collaborator: everything downstream receives typed, validated
// values, never raw INI keys.
package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/ini.v1"
)

// ServerConfig is the validated settings struct every other package
// consumes; nothing downstream re-parses the INI file.
type ServerConfig struct {
	BindAddress string
	Port        int
	HTMLRoot    string
	ServerName  string

	ExtraHeaders string // pre-joined "Key: Value\r\n" block from [response-headers]

	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string

	LogFile  string
	LogLevel string // one of {error, warn, info, debug, trace, all}

	PIDFile string

	// CacheSyncRedisAddr and CacheSyncChannel, when both set, make the
	// server subscribe to a Redis pub/sub channel and reload the content
	// cache on every message received there (a cross-process counterpart to
	// SIGUSR1; a failed reload from this source is logged, not fatal).
	CacheSyncRedisAddr string
	CacheSyncChannel   string

	// AccessLogDriver and AccessLogDSN, when both set, open a database/sql
	// connection with the named registered driver and record every completed
	// request there in addition to the JSONL file sink.
	AccessLogDriver string
	AccessLogDSN    string

	MetricsAddr string // address for the separate /metrics listener; empty disables it
}

const defaultPIDFile = "/var/run/nvhttpd.pid"

// Load parses the INI file at path and returns a validated ServerConfig.
func Load(path string) (*ServerConfig, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}

	server := f.Section("server")
	// Checked before any Key lookup: Key creates a missing key as a side effect.
	portSet := server.HasKey("port")
	cfg := &ServerConfig{
		BindAddress: server.Key("ip").MustString("any"),
		Port:        server.Key("port").MustInt(80),
		HTMLRoot:    server.Key("html_path").String(),
		ServerName:  server.Key("name").MustString("nvhttpd"),
	}
	if cfg.HTMLRoot == "" {
		return nil, fmt.Errorf("config: [server].html_path is required")
	}

	cfg.ExtraHeaders = joinResponseHeaders(f.Section("response-headers"))

	ssl := f.Section("SSL")
	cfg.TLSEnabled = ssl.Key("enabled").MustBool(false)
	cfg.TLSCertFile = ssl.Key("certificate").String()
	cfg.TLSKeyFile = ssl.Key("key").String()
	if cfg.TLSEnabled && (cfg.TLSCertFile == "" || cfg.TLSKeyFile == "") {
		return nil, fmt.Errorf("config: [SSL] enabled but certificate/key path missing")
	}
	if cfg.TLSEnabled && cfg.Port == 80 && !portSet {
		cfg.Port = 443
	}

	logging := f.Section("logging")
	cfg.LogFile = logging.Key("file").String()
	cfg.LogLevel = logging.Key("level").MustString("info")
	if !validLogLevel(cfg.LogLevel) {
		return nil, fmt.Errorf("config: [logging].level %q is not one of error|warn|info|debug|trace|all", cfg.LogLevel)
	}

	cfg.PIDFile = logging.Key("pid").MustString(defaultPIDFile)

	sync := f.Section("cache-sync")
	cfg.CacheSyncRedisAddr = sync.Key("redis_addr").String()
	cfg.CacheSyncChannel = sync.Key("channel").String()

	al := f.Section("access-log")
	cfg.AccessLogDriver = al.Key("driver").String()
	cfg.AccessLogDSN = al.Key("dsn").String()
	if (cfg.AccessLogDriver == "") != (cfg.AccessLogDSN == "") {
		return nil, fmt.Errorf("config: [access-log] driver and dsn must be set together")
	}

	cfg.MetricsAddr = f.Section("metrics").Key("addr").String()

	return cfg, nil
}

func validLogLevel(level string) bool {
	switch level {
	case "error", "warn", "info", "debug", "trace", "all":
		return true
	default:
		return false
	}
}

// joinResponseHeaders renders every key in the [response-headers] section
// as "Key: Value\r\n", in a stable (sorted-by-key) order so repeated loads
// of the same file produce byte-identical header blocks.
func joinResponseHeaders(section *ini.Section) string {
	keys := section.Keys()
	names := make([]string, 0, len(keys))
	values := make(map[string]string, len(keys))
	for _, k := range keys {
		names = append(names, k.Name())
		values[k.Name()] = k.Value()
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(values[name])
		sb.WriteString("\r\n")
	}
	return sb.String()
}
