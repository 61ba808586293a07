/*
Copyright 2026 The Lattice Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package qcache

import (
	"context"
	"time"

	"github.com/golang/snappy"
	"github.com/redis/go-redis/v9"

	"github.com/latticeio/lattice/go/lt/lterrors"
)

// RedisConfig configures the shared Redis result tier.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// Prefix namespaces every key the tier writes. Defaults to
	// "lattice:".
	Prefix string
}

// RedisTier is the reference ExternalTier. Values are stored
// snappy-compressed under <prefix>q:<key>. Each tag keeps a set of the
// value keys written under it at <prefix>t:<tag>, so invalidation is
// one SMEMBERS round trip plus the deletes. Tag sets carry no expiry
// of their own; they are dropped wholesale when the tag is purged, and
// members whose values already expired delete as no-ops.
type RedisTier struct {
	client *redis.Client
	prefix string
}

var _ ExternalTier = (*RedisTier)(nil)

// NewRedisTier connects to Redis and verifies the connection before
// returning the tier.
func NewRedisTier(ctx context.Context, cfg RedisConfig) (*RedisTier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, lterrors.Errorf(lterrors.CodeCache, "redis result tier at %s: %v", cfg.Addr, err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "lattice:"
	}
	return &RedisTier{client: client, prefix: prefix}, nil
}

// Close releases the underlying connection pool.
func (t *RedisTier) Close() error { return t.client.Close() }

func (t *RedisTier) valueKey(key string) string { return t.prefix + "q:" + key }
func (t *RedisTier) tagKey(tag string) string   { return t.prefix + "t:" + tag }

// Get implements ExternalTier.
func (t *RedisTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := t.client.Get(ctx, t.valueKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	val, err := snappy.Decode(nil, raw)
	if err != nil {
		// Drop the corrupt entry so the next fetch is a clean miss.
		t.client.Del(ctx, t.valueKey(key))
		return nil, false, err
	}
	return val, true, nil
}

// Set implements ExternalTier.
func (t *RedisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	if ttl < 0 {
		ttl = 0
	}
	vk := t.valueKey(key)
	if err := t.client.Set(ctx, vk, snappy.Encode(nil, value), ttl).Err(); err != nil {
		return err
	}
	for _, tag := range tags {
		if err := t.client.SAdd(ctx, t.tagKey(tag), vk).Err(); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateByTag implements ExternalTier.
func (t *RedisTier) InvalidateByTag(ctx context.Context, tag string) error {
	tk := t.tagKey(tag)
	keys, err := t.client.SMembers(ctx, tk).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	if len(keys) > 0 {
		if err := t.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return t.client.Del(ctx, tk).Err()
}
