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

// Package cache provides a typed in-process key/value cache with TTL
// expiration. The gate uses it for compiled query plans and the result
// cache uses it for local-tier bookkeeping.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Keyer is the interface cache keys implement to turn themselves into
// string keys.
//
// Note: we define this type rather than using Stringer so users may
// implement that interface for different string representation needs.
type Keyer interface{ Key() string }

const (
	// DefaultExpiration instructs Add to use the cache's default TTL.
	DefaultExpiration = gocache.DefaultExpiration
	// NoExpiration makes an entry never expire.
	NoExpiration = gocache.NoExpiration
)

// Config is the configuration for a cache.
type Config struct {
	// DefaultExpiration is how long to keep values by default (the
	// duration passed to Add takes precedence). Use NoExpiration to make
	// values never expire by default.
	DefaultExpiration time.Duration
	// CleanupInterval is how often expired values are removed. Zero
	// disables background cleanup; expired values are then dropped
	// lazily on Get.
	CleanupInterval time.Duration
}

// Cache is a typed cache over string-keyed storage.
type Cache[Key Keyer, Value any] struct {
	cache *gocache.Cache
}

// New creates a new cache.
func New[Key Keyer, Value any](cfg Config) *Cache[Key, Value] {
	return &Cache[Key, Value]{
		cache: gocache.New(cfg.DefaultExpiration, cfg.CleanupInterval),
	}
}

// Add stores a value. DefaultExpiration and NoExpiration are honored as
// sentinel durations.
func (c *Cache[Key, Value]) Add(key Key, val Value, d time.Duration) {
	c.cache.Set(key.Key(), val, d)
}

// Get returns the value for key, if present and unexpired.
func (c *Cache[Key, Value]) Get(key Key) (Value, bool) {
	var zero Value
	v, ok := c.cache.Get(key.Key())
	if !ok {
		return zero, false
	}
	typed, ok := v.(Value)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Del removes the entry for key.
func (c *Cache[Key, Value]) Del(key Key) {
	c.cache.Delete(key.Key())
}

// Flush drops every entry.
func (c *Cache[Key, Value]) Flush() {
	c.cache.Flush()
}

// Len returns the number of stored entries, including not yet collected
// expired ones.
func (c *Cache[Key, Value]) Len() int {
	return c.cache.ItemCount()
}
