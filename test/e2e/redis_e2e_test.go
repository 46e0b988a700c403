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

package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"nvhttpd/internal/httpd/cache"
)

// TestRedisReloadFanOutE2E verifies the real Redis pub/sub adapter path:
// a message published on the cache-sync channel triggers a reload that
// picks up a file added to the tree after the initial load. Requires a
// Redis reachable at 127.0.0.1:6379.
func TestRedisReloadFanOutE2E(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: redis not reachable on 127.0.0.1:6379: %v", err)
	}
	defer client.Close()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("v1"), 0o644))

	c := cache.New(1, nopLogger{}, nil)
	require.NoError(t, c.Load(root))

	const channel = "nvhttpd-e2e-reload"
	sub := cache.NewRedisSubscriber("127.0.0.1:6379", channel)
	defer sub.Close()

	reloaded := make(chan struct{}, 1)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	go cache.WatchReloads(watchCtx, sub, func() {
		_ = c.Load(root)
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	time.Sleep(100 * time.Millisecond) // let the subscription establish before publishing
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("v2"), 0o644))
	require.NoError(t, client.Publish(context.Background(), channel, "reload").Err())

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload notification")
	}

	entry, ok := c.Find("/index.html")
	require.True(t, ok)
	require.Equal(t, "v2", string(entry.Bytes))
}
