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

// Package response formats and frames the reply for one request: status
// line, headers, and (except for HEAD) body, written to a Transport in a
// single write loop that tolerates short writes.
package response

import (
	"fmt"
	"net/http"
	"time"
)

// Entry is the body-bearing half of a response: what the content cache (or
// the synthesized error-page fallback) hands the assembler.
type Entry struct {
	Length int
	MIME   string
	Bytes  []byte
}

// Writer is the one primitive a response needs from a Transport; satisfied
// by *transport.Transport.
type Writer interface {
	Write(p []byte) (int, error)
}

var reasonPhrases = map[int]string{
	200: "200 OK",
	400: "400 Bad Request",
	404: "404 Not Found",
	500: "500 Internal Server Error",
	501: "501 Not Implemented",
}

// reasonPhrase returns the tabulated reason phrase, or a bare status number
// for any status this server never actually issues but a caller passes
// anyway.
func reasonPhrase(status int) string {
	if r, ok := reasonPhrases[status]; ok {
		return r
	}
	return fmt.Sprintf("%d", status)
}

// Fallback builds the minimal entry used when no cache entry exists for a
// chosen error-page path: body is the reason-phrase string itself, MIME is
// text/plain.
func Fallback(status int) Entry {
	body := []byte(reasonPhrase(status))
	return Entry{Length: len(body), MIME: "text/plain", Bytes: body}
}

// Write assembles and sends the response for status/entry over w. isHead
// distinguishes HEAD from GET: for HEAD, Content-Length still reflects the
// entry's real length but zero body bytes follow the header block.
// extraHeaders is a pre-joined, CRLF-terminated block (as produced by the
// [response-headers] INI section) and may be empty.
func Write(w Writer, status int, entry Entry, isHead bool, extraHeaders string, now time.Time) error {
	buf := make([]byte, 0, len(entry.Bytes)+256)
	buf = append(buf, "HTTP/1.1 "...)
	buf = append(buf, reasonPhrase(status)...)
	buf = append(buf, "\r\n"...)
	buf = append(buf, "Date: "...)
	buf = append(buf, now.UTC().Format(http.TimeFormat)...)
	buf = append(buf, "\r\n"...)
	buf = append(buf, "Content-Type: "...)
	buf = append(buf, entry.MIME...)
	buf = append(buf, "\r\n"...)
	buf = append(buf, fmt.Sprintf("Content-Length: %d\r\n", entry.Length)...)
	buf = append(buf, extraHeaders...)
	buf = append(buf, "\r\n"...)
	if !isHead {
		buf = append(buf, entry.Bytes...)
	}
	return writeAll(w, buf)
}

// WriteWithFallback behaves like Write, but substitutes the synthesized
// plain-text fallback when no cache hit exists for the chosen error-page
// path.
func WriteWithFallback(w Writer, status int, entry Entry, entryFound bool, isHead bool, extraHeaders string, now time.Time) error {
	if !entryFound {
		entry = Fallback(status)
	}
	return Write(w, status, entry, isHead, extraHeaders, now)
}

// writeAll sends buf in a loop that tolerates short writes, the same
// framing discipline the dispatcher's worker relies on for every response:
// a non-positive return from Write without an error is itself treated as a
// fatal framing failure rather than retried forever.
func writeAll(w Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		if n <= 0 {
			return fmt.Errorf("response: write returned %d bytes with no error", n)
		}
		buf = buf[n:]
	}
	return nil
}
