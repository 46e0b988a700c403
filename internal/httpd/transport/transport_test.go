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

package transport

import (
	"net"
	"testing"
	"time"
)

func pipePair(t *testing.T) (*Transport, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	return New(server), client
}

func TestPeekDoesNotConsume(t *testing.T) {
	tr, client := pipePair(t)
	go func() { client.Write([]byte("AB")) }()

	b1, err := tr.Peek()
	if err != nil || b1 != 'A' {
		t.Fatalf("Peek() = %q, %v", b1, err)
	}
	b2, err := tr.Peek()
	if err != nil || b2 != 'A' {
		t.Fatalf("second Peek() = %q, %v, want still 'A'", b2, err)
	}
	b3, err := tr.Next()
	if err != nil || b3 != 'A' {
		t.Fatalf("Next() = %q, %v", b3, err)
	}
	b4, err := tr.Next()
	if err != nil || b4 != 'B' {
		t.Fatalf("Next() = %q, %v, want 'B'", b4, err)
	}
}

func TestNextSurfacesEOFOnClosedPeer(t *testing.T) {
	tr, client := pipePair(t)
	client.Close()

	_, err := tr.Next()
	if err == nil {
		t.Fatal("expected an error after the peer closed the connection")
	}
}

func TestWritePassesThrough(t *testing.T) {
	tr, client := pipePair(t)
	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := client.Read(buf)
		done <- buf[:n]
	}()

	n, err := tr.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	select {
	case got := <-done:
		if string(got) != "hello" {
			t.Errorf("peer read %q, want %q", got, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for peer read")
	}
}

func TestRefillCrossesBufferBoundary(t *testing.T) {
	tr, client := pipePair(t)
	payload := make([]byte, BufferSize+10)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}
	go func() { client.Write(payload) }()

	for i, want := range payload {
		got, err := tr.Next()
		if err != nil {
			t.Fatalf("Next() at %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("byte %d = %q, want %q", i, got, want)
		}
	}
}
