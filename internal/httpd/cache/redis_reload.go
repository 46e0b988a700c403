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
	"context"

	redis "github.com/redis/go-redis/v9"
)

// Subscriber abstracts the minimal surface nvhttpd needs from a pub/sub
// client, just enough to receive reload notices. Implementations may wrap
// github.com/redis/go-redis/v9 (RedisSubscriber) or any equivalent; tests
// substitute an in-memory fake.
type Subscriber interface {
	// Receive blocks until a message arrives on the subscribed channel, the
	// context is canceled, or the subscription is closed.
	Receive(ctx context.Context) (payload string, err error)
	Close() error
}

// RedisSubscriber is a production Subscriber backed by
// github.com/redis/go-redis/v9. Construct with NewRedisSubscriber.
type RedisSubscriber struct {
	pubsub *redis.PubSub
}

// NewRedisSubscriber dials addr and subscribes to channel. The returned
// Subscriber's Close closes the subscription only; the redis client created
// here is not kept and is not closed.
func NewRedisSubscriber(addr, channel string) *RedisSubscriber {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisSubscriber{pubsub: client.Subscribe(context.Background(), channel)}
}

func (r *RedisSubscriber) Receive(ctx context.Context) (string, error) {
	msg, err := r.pubsub.ReceiveMessage(ctx)
	if err != nil {
		return "", err
	}
	return msg.Payload, nil
}

func (r *RedisSubscriber) Close() error {
	return r.pubsub.Close()
}

// WatchReloads runs until ctx is canceled or sub.Receive returns an error,
// calling onReload for every message received. cmd/nvhttpd runs it in its
// own goroutine with an onReload that reloads the content cache directly —
// a cross-process counterpart to SIGUSR1 for deployments running more than
// one nvhttpd instance behind a load balancer that want a single publish to
// reload every instance's cache.
func WatchReloads(ctx context.Context, sub Subscriber, onReload func()) {
	for {
		_, err := sub.Receive(ctx)
		if err != nil {
			return
		}
		onReload()
	}
}
