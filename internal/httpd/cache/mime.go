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

import "strings"

const defaultMIME = "application/octet-stream"

// mimeTable maps a lower-cased extension (without the leading dot) to its
// static MIME string. Anything not present here, or a path with no
// extension at all, resolves to defaultMIME.
var mimeTable = map[string]string{
	"css":         "text/css",
	"docx":        "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"html":        "text/html; charset=UTF-8",
	"ico":         "image/x-icon",
	"jpg":         "image/jpeg",
	"jpeg":        "image/jpeg",
	"js":          "application/javascript",
	"md":          "text/markdown",
	"png":         "image/png",
	"svg":         "image/svg+xml",
	"webmanifest": "application/manifest+json",
	"xml":         "text/xml",
}

// mimeFor infers the MIME type from the extension after the last '.' in
// path, case-insensitively.
func mimeFor(path string) string {
	dot := strings.LastIndexByte(path, '.')
	if dot < 0 || dot == len(path)-1 {
		return defaultMIME
	}
	ext := strings.ToLower(path[dot+1:])
	if m, ok := mimeTable[ext]; ok {
		return m
	}
	return defaultMIME
}
