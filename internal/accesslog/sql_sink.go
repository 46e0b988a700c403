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
	"time"
)

// SQL schema (reference):
//
// CREATE TABLE IF NOT EXISTS access_log (
//   id         BIGSERIAL PRIMARY KEY,
//   at         TIMESTAMPTZ NOT NULL,
//   method     TEXT NOT NULL,
//   path       TEXT NOT NULL,
//   status     INTEGER NOT NULL,
//   bytes      INTEGER NOT NULL,
//   duration_ms DOUBLE PRECISION NOT NULL
// );
// CREATE INDEX IF NOT EXISTS idx_access_log_at ON access_log(at);

// SQLSink writes each Entry as one row via database/sql, for deployments
// that want a queryable access log instead of (or alongside) the JSONL
// file sink. It works over any *sql.DB the caller opened with a registered
// database/sql driver; this sink does not import a specific driver.
type SQLSink struct {
	db             *sql.DB
	insert         *sql.Stmt
	defaultTimeout time.Duration
}

// NewSQLSink prepares the insert statement against db. The caller owns
// db's lifecycle beyond Close, which only releases the prepared statement.
func NewSQLSink(ctx context.Context, db *sql.DB) (*SQLSink, error) {
	stmt, err := db.PrepareContext(ctx,
		`INSERT INTO access_log(at, method, path, status, bytes, duration_ms) VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return nil, err
	}
	return &SQLSink{db: db, insert: stmt, defaultTimeout: 5 * time.Second}, nil
}

func (s *SQLSink) Write(e Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.defaultTimeout)
	defer cancel()
	_, err := s.insert.ExecContext(ctx, e.At, e.Method, e.Path, e.Status, e.Bytes, e.Duration.Seconds()*1000)
	return err
}

func (s *SQLSink) Close() error {
	return s.insert.Close()
}
