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

// Package accesslog records one entry per completed request: method, path,
// status, response byte count, and duration. A Sink is pluggable; the
// default is an append-only JSONL file, with an optional SQL sink for
// deployments that want queryable access logs.
package accesslog

import "time"

// Entry is one completed request.
type Entry struct {
	At       time.Time
	Method   string
	Path     string
	Status   int
	Bytes    int
	Duration time.Duration
}

// Sink receives completed entries. Implementations must be safe for
// concurrent use: one dispatcher worker per connection may call Write.
type Sink interface {
	Write(e Entry) error
	Close() error
}

// MultiSink fans a single Entry out to every sink in order, returning the
// first error encountered (after still attempting every sink) so one
// degraded sink never silently swallows entries headed to the others.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds a MultiSink over sinks, skipping any nil entries.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) Write(e Entry) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Write(e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
