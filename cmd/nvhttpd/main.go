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

// Package main is the entry point for nvhttpd: a small static-content
// HTTP/1.x server. It wires together configuration, logging, the content
// cache, and the connection dispatcher, then blocks until a terminate
// signal is observed.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"nvhttpd/internal/accesslog"
	"nvhttpd/internal/cli"
	"nvhttpd/internal/config"
	"nvhttpd/internal/httpd/cache"
	"nvhttpd/internal/httpd/dispatch"
	"nvhttpd/internal/logging"
	"nvhttpd/internal/metrics"
	"nvhttpd/internal/pidfile"
)

const usage = `nvhttpd - a small static-content HTTP/1.x server

Usage:
  nvhttpd -c <config.ini>
  nvhttpd -h
  nvhttpd -v
`

func main() {
	opts, err := cli.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if opts.Help {
		fmt.Print(usage)
		return
	}
	if opts.ShowVer {
		fmt.Println("nvhttpd " + cli.Version)
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "nvhttpd: %v\n", err)
		os.Exit(1)
	}
}

// cacheAdapter satisfies dispatch.Cache by translating cache.CacheEntry
// (which also carries Path and Hash) down to the response-relevant fields
// dispatch.CacheEntry needs.
type cacheAdapter struct {
	c *cache.Cache
}

func (a cacheAdapter) Load(root string) error { return a.c.Load(root) }

func (a cacheAdapter) Find(path string) (dispatch.CacheEntry, bool) {
	e, ok := a.c.Find(path)
	if !ok {
		return dispatch.CacheEntry{}, false
	}
	return dispatch.CacheEntry{Length: e.Length, MIME: e.MIME, Bytes: e.Bytes}, true
}

func run(opts *cli.Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	var logSink *os.File = os.Stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		logSink = f
	}
	logger := logging.New(logSink, logging.ParseLevel(cfg.LogLevel))
	logger.Start()
	defer logger.Stop()

	pf, err := pidfile.Write(cfg.PIDFile)
	if err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}
	defer pf.Remove()

	observer := metrics.Observer{}
	contentCache := cache.New(0, logger, observer)
	if err := contentCache.Load(cfg.HTMLRoot); err != nil {
		return fmt.Errorf("initial cache load: %w", err)
	}

	fileSink, err := accesslog.NewFileSink(defaultAccessLogPath(cfg))
	if err != nil {
		return fmt.Errorf("opening access log: %w", err)
	}
	defer fileSink.Close()
	var accessLog accesslog.Sink = fileSink

	if cfg.AccessLogDriver != "" {
		db, err := sql.Open(cfg.AccessLogDriver, cfg.AccessLogDSN)
		if err != nil {
			return fmt.Errorf("opening access-log database: %w", err)
		}
		defer db.Close()
		sqlSink, err := accesslog.NewSQLSink(context.Background(), db)
		if err != nil {
			return fmt.Errorf("preparing access-log insert: %w", err)
		}
		defer sqlSink.Close()
		accessLog = accesslog.NewMultiSink(fileSink, sqlSink)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logger.Errorf("metrics listener on %s stopped: %v", cfg.MetricsAddr, err)
			}
		}()
	}

	d, err := dispatch.New(dispatch.Config{
		BindAddress:  cfg.BindAddress,
		Port:         cfg.Port,
		HTMLRoot:     cfg.HTMLRoot,
		ExtraHeaders: cfg.ExtraHeaders,
		TLSEnabled:   cfg.TLSEnabled,
		CertFile:     cfg.TLSCertFile,
		KeyFile:      cfg.TLSKeyFile,
	}, cacheAdapter{c: contentCache}, logger, observer, accessLog)
	if err != nil {
		return fmt.Errorf("starting dispatcher: %w", err)
	}

	if cfg.CacheSyncRedisAddr != "" && cfg.CacheSyncChannel != "" {
		sub := cache.NewRedisSubscriber(cfg.CacheSyncRedisAddr, cfg.CacheSyncChannel)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go cache.WatchReloads(ctx, sub, func() {
			if err := contentCache.Load(cfg.HTMLRoot); err != nil {
				logger.Errorf("cache-sync reload failed: %v", err)
			}
		})
		defer sub.Close()
	}

	logger.Infof("nvhttpd listening on %s:%d, serving %s", cfg.BindAddress, cfg.Port, cfg.HTMLRoot)
	return d.Run()
}

func defaultAccessLogPath(cfg *config.ServerConfig) string {
	if cfg.LogFile != "" {
		return cfg.LogFile + ".access"
	}
	return "nvhttpd.access.log"
}
