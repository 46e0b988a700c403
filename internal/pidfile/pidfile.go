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

// Package pidfile manages the lifecycle of the server's PID file: written
// on startup, removed on exit.
package pidfile

import (
	"fmt"
	"os"
)

// PIDFile represents a process ID file this instance owns and must remove.
type PIDFile struct {
	path string
}

// Write creates path exclusively (O_EXCL) containing the current process's
// PID. A pre-existing file at path is treated as a startup failure — it
// most likely means another instance is already running.
func Write(path string) (*PIDFile, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pidfile: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("pidfile: writing %s: %w", path, err)
	}
	return &PIDFile{path: path}, nil
}

// Remove unlinks the PID file. It is safe to call more than once.
func (p *PIDFile) Remove() error {
	if p == nil {
		return nil
	}
	err := os.Remove(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
