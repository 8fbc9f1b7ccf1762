// Copyright (c) 2018 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package snapshot

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots in Redis under <prefix><scope> with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis at <addr>, either "host:port" or
// a "redis://" URL. Zero <ttl> keeps snapshots forever.
func NewRedisStore(ctx context.Context, addr, prefix string, ttl time.Duration) (*RedisStore, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		var err error
		if opts, err = redis.ParseURL(addr); err != nil {
			return nil, errors.Wrapf(err, "invalid redis address %s", addr)
		}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis %s", addr)
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (r *RedisStore) key(scope string) string {
	return r.prefix + scope
}

// Save stores the snapshot and resets its TTL.
func (r *RedisStore) Save(ctx context.Context, snapshot *Snapshot) error {
	data, err := Encode(snapshot)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(snapshot.Scope), data, r.ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to save snapshot of %s", snapshot.Scope)
	}
	return nil
}

// Load returns the stored snapshot.
func (r *RedisStore) Load(ctx context.Context, scope string) (*Snapshot, error) {
	data, err := r.client.Get(ctx, r.key(scope)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load snapshot of %s", scope)
	}
	return Decode(data)
}

// Delete removes the snapshot.
func (r *RedisStore) Delete(ctx context.Context, scope string) error {
	return r.client.Del(ctx, r.key(scope)).Err()
}

// Close closes the connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
