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

package accesslog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memDriver is a minimal database/sql driver recording every statement
// execution, so the SQL sink's prepared-statement path can be exercised
// without a live database.
type memDriver struct {
	conn *memConn
}

func (d *memDriver) Open(name string) (driver.Conn, error) { return d.conn, nil }

type memConn struct {
	mu       sync.Mutex
	prepared []string
	execs    [][]driver.Value
}

func (c *memConn) Prepare(query string) (driver.Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prepared = append(c.prepared, query)
	return &memStmt{conn: c}, nil
}

func (c *memConn) Close() error              { return nil }
func (c *memConn) Begin() (driver.Tx, error) { return nil, errors.New("transactions not supported") }

type memStmt struct {
	conn *memConn
}

func (s *memStmt) Close() error  { return nil }
func (s *memStmt) NumInput() int { return 6 }

func (s *memStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	row := make([]driver.Value, len(args))
	copy(row, args)
	s.conn.execs = append(s.conn.execs, row)
	return driver.RowsAffected(1), nil
}

func (s *memStmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, errors.New("queries not supported")
}

var (
	memOnce    sync.Once
	memBackend = &memConn{}
)

func openMemDB(t *testing.T) *sql.DB {
	t.Helper()
	memOnce.Do(func() { sql.Register("accesslog-mem", &memDriver{conn: memBackend}) })
	db, err := sql.Open("accesslog-mem", "")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLSinkWritesOneRowPerEntry(t *testing.T) {
	db := openMemDB(t)
	sink, err := NewSQLSink(context.Background(), db)
	require.NoError(t, err)
	defer sink.Close()

	before := len(memBackend.execs)
	entry := Entry{
		At:       time.Unix(42, 0),
		Method:   "GET",
		Path:     "/index.html",
		Status:   200,
		Bytes:    13,
		Duration: 250 * time.Millisecond,
	}
	require.NoError(t, sink.Write(entry))

	memBackend.mu.Lock()
	defer memBackend.mu.Unlock()
	require.Len(t, memBackend.execs, before+1)
	row := memBackend.execs[before]
	require.Len(t, row, 6)
	assert.Equal(t, time.Unix(42, 0), row[0].(time.Time))
	assert.Equal(t, "GET", row[1])
	assert.Equal(t, "/index.html", row[2])
	assert.Equal(t, int64(200), row[3])
	assert.Equal(t, int64(13), row[4])
	assert.Equal(t, float64(250), row[5])
}

func TestSQLSinkPreparesInsertOnce(t *testing.T) {
	db := openMemDB(t)
	sink, err := NewSQLSink(context.Background(), db)
	require.NoError(t, err)
	defer sink.Close()

	memBackend.mu.Lock()
	prepared := len(memBackend.prepared)
	memBackend.mu.Unlock()

	require.NoError(t, sink.Write(Entry{Method: "GET", Path: "/a"}))
	require.NoError(t, sink.Write(Entry{Method: "HEAD", Path: "/b"}))

	memBackend.mu.Lock()
	defer memBackend.mu.Unlock()
	assert.Equal(t, prepared, len(memBackend.prepared), "Write must reuse the prepared statement")
}
