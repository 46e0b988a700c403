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

package cache

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// walkRoot recursively walks root and returns one CacheEntry per regular
// file. A filename beginning with '.' (and everything beneath it, if it is
// a directory) is skipped. The stored Path has the root prefix stripped and
// begins with '/', matching what a client sends on the wire.
func walkRoot(root string) ([]*CacheEntry, error) {
	root = filepath.Clean(root)
	var entries []*CacheEntry

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && p != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		body, err := os.ReadFile(p)
		if err != nil {
			return err
		}

		reqPath := strings.TrimPrefix(p, root)
		reqPath = filepath.ToSlash(reqPath)
		if !strings.HasPrefix(reqPath, "/") {
			reqPath = "/" + reqPath
		}

		entries = append(entries, &CacheEntry{
			Path:   reqPath,
			Hash:   hashPath(reqPath),
			Bytes:  body,
			Length: len(body),
			MIME:   mimeFor(reqPath),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
