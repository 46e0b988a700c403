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

// Package transport provides the buffered byte-oriented abstraction that
// carries either a plain TCP socket or a TLS session. *tls.Conn already
// implements net.Conn and already owns the raw socket beneath it, so a
// Transport only ever needs to hold one net.Conn — the TLS-vs-plain
// distinction is resolved once, by the dispatcher, at accept time.
package transport

import (
	"io"
	"net"
)

// BufferSize is the fixed size of the read-ahead buffer Peek and Next
// lazily refill from the socket.
const BufferSize = 4096

// Transport pairs a connection with a small read-ahead buffer used by the
// parser's Peek/Next. 0 <= head <= len <= BufferSize is maintained as an
// invariant by refill.
type Transport struct {
	conn net.Conn
	buf  [BufferSize]byte
	head int
	len  int
}

// New wraps conn (a plain net.Conn or a *tls.Conn post-handshake) in a
// Transport with an empty read buffer.
func New(conn net.Conn) *Transport {
	return &Transport{conn: conn}
}

// Conn exposes the underlying connection, e.g. for SetDeadline calls made
// by the dispatcher.
func (t *Transport) Conn() net.Conn { return t.conn }

// refill blocks on the socket to pull in more bytes once the buffer is
// drained. It is the only place a Transport suspends on I/O for reading.
func (t *Transport) refill() error {
	n, err := t.conn.Read(t.buf[:])
	t.head = 0
	t.len = n
	if n > 0 {
		// A short read that also returned an error (e.g. io.EOF) still has
		// bytes worth delivering to the caller before the error surfaces on
		// the next refill.
		return nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return err
}

// Peek returns the next byte without consuming it. Calling Peek repeatedly
// without an intervening Next returns the same byte.
func (t *Transport) Peek() (byte, error) {
	if t.head >= t.len {
		if err := t.refill(); err != nil {
			return 0, err
		}
	}
	return t.buf[t.head], nil
}

// Next returns and consumes the next byte.
func (t *Transport) Next() (byte, error) {
	b, err := t.Peek()
	if err != nil {
		return 0, err
	}
	t.head++
	return b, nil
}

// Write passes p straight through to the underlying connection. It does not
// loop on a short write; callers that must guarantee a full write (the
// response assembler) handle retrying themselves.
func (t *Transport) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

// Close closes the underlying connection. It has no guard against repeated
// calls; each call closes the connection again.
func (t *Transport) Close() error {
	return t.conn.Close()
}
