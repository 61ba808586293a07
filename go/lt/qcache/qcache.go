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

// Package qcache is the two-tier query result cache. The first tier
// lives in process, the second is shared between nodes through the
// ExternalTier contract (RedisTier in production, NullTier when no
// backend is configured).
//
// A fetch checks the local tier, then the external tier, then computes
// the value and populates both. Concurrent fetches for the same key
// collapse to a single computation. The external tier is advisory: any
// failure there is logged and absorbed, and the request proceeds on
// computed results.
package qcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/latticeio/lattice/go/cache"
	"github.com/latticeio/lattice/go/lt/log"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/lt/trace"
	"github.com/latticeio/lattice/go/stats"
)

var (
	lookups = stats.NewCountersWithSingleLabel(
		"QueryCacheLookups",
		"Result cache fetches by outcome",
		"Outcome")
	tierErrors = stats.NewCounter(
		"QueryCacheExternalErrors",
		"External result tier failures absorbed by local execution")
	invalidations = stats.NewCounter(
		"QueryCacheInvalidations",
		"Result cache tags purged")
)

// Spec carries the caching instructions attached to one query subtree.
type Spec struct {
	// Key identifies the entry. Schemas may pin it explicitly,
	// otherwise callers derive it with ResultKey. An empty key makes
	// Fetch compute without touching either tier.
	Key string
	// TTL bounds the entry lifetime in both tiers. Zero falls back to
	// the configured default.
	TTL time.Duration
	// Tags index the entry for Invalidate.
	Tags []string
	// Bypass skips the read and the write path for this fetch.
	Bypass bool
}

// Outcome reports how a Fetch was served.
type Outcome int

const (
	// Computed means both tiers missed and the compute callback ran.
	Computed Outcome = iota
	// LocalHit means the in-process tier held the value.
	LocalHit
	// ExternalHit means the shared tier held the value. The local tier
	// is backfilled on the way out.
	ExternalHit
	// Shared means a concurrent fetch for the same key computed the
	// value and this call reused it.
	Shared
	// Bypassed means caching was disabled for this fetch.
	Bypassed
)

func (o Outcome) String() string {
	switch o {
	case LocalHit:
		return "local_hit"
	case ExternalHit:
		return "external_hit"
	case Shared:
		return "shared"
	case Bypassed:
		return "bypass"
	default:
		return "computed"
	}
}

// Config configures a Cache.
type Config struct {
	// DefaultTTL applies to entries whose Spec sets no TTL. Zero keeps
	// entries until they are invalidated.
	DefaultTTL time.Duration
	// CleanupInterval is how often expired local entries are reaped.
	// Zero drops them lazily on access.
	CleanupInterval time.Duration
	// External is the shared tier. nil runs the cache local-only.
	External ExternalTier
}

type entryKey string

func (k entryKey) Key() string { return string(k) }

// Cache is the two-tier result cache.
type Cache struct {
	local    *cache.Cache[entryKey, []byte]
	external ExternalTier
	group    singleflight.Group
	ttl      time.Duration

	mu   sync.Mutex
	tags map[string]map[string]struct{}
}

// New builds a Cache. A nil Config.External degrades to NullTier.
func New(cfg Config) *Cache {
	ext := cfg.External
	if ext == nil {
		ext = NullTier{}
	}
	return &Cache{
		local: cache.New[entryKey, []byte](cache.Config{
			DefaultExpiration: cfg.DefaultTTL,
			CleanupInterval:   cfg.CleanupInterval,
		}),
		external: ext,
		ttl:      cfg.DefaultTTL,
		tags:     make(map[string]map[string]struct{}),
	}
}

type fill struct {
	val     []byte
	outcome Outcome
}

// Fetch returns the value for spec, computing and populating both
// tiers on a miss. compute runs at most once per key across concurrent
// callers. External tier failures never surface to the caller: they
// are logged and the fetch proceeds as a miss.
func (c *Cache) Fetch(ctx context.Context, spec *Spec, compute func(context.Context) ([]byte, error)) ([]byte, Outcome, error) {
	if spec == nil || spec.Bypass || spec.Key == "" {
		lookups.Add(Bypassed.String(), 1)
		val, err := compute(ctx)
		if err != nil {
			return nil, Bypassed, err
		}
		return val, Bypassed, nil
	}
	key := spec.Key
	if val, ok := c.local.Get(entryKey(key)); ok {
		lookups.Add(LocalHit.String(), 1)
		return val, LocalHit, nil
	}
	v, err, shared := c.group.Do(key, func() (any, error) {
		// A concurrent fetch may have filled the entry between the
		// lookup above and joining the flight.
		if val, ok := c.local.Get(entryKey(key)); ok {
			return fill{val, LocalHit}, nil
		}
		if val, ok := c.externalGet(ctx, key); ok {
			c.storeLocal(key, val, spec)
			return fill{val, ExternalHit}, nil
		}
		val, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, val, spec)
		return fill{val, Computed}, nil
	})
	if err != nil {
		return nil, Computed, err
	}
	f := v.(fill)
	outcome := f.outcome
	if shared && outcome == Computed {
		outcome = Shared
	}
	lookups.Add(outcome.String(), 1)
	return f.val, outcome, nil
}

// Invalidate drops every entry carrying any of the tags from both
// tiers. A failing external tier is logged and skipped: this node
// stops serving the purged entries either way.
func (c *Cache) Invalidate(ctx context.Context, tags ...string) {
	if len(tags) == 0 {
		return
	}
	invalidations.Add(int64(len(tags)))
	c.mu.Lock()
	for _, tag := range tags {
		for key := range c.tags[tag] {
			c.local.Del(entryKey(key))
		}
		delete(c.tags, tag)
	}
	c.mu.Unlock()
	for _, tag := range tags {
		if err := c.external.InvalidateByTag(ctx, tag); err != nil {
			tierErrors.Add(1)
			log.Warningf("%v", lterrors.Errorf(lterrors.CodeCache, "external result tier invalidate %q: %v", tag, err))
		}
	}
}

func (c *Cache) externalGet(ctx context.Context, key string) ([]byte, bool) {
	span, ctx := trace.NewSpan(ctx, "qcache.ExternalGet")
	defer span.Finish()
	span.Annotate("key", key)
	val, found, err := c.external.Get(ctx, key)
	if err != nil {
		tierErrors.Add(1)
		log.Warningf("%v", lterrors.Errorf(lterrors.CodeCache, "external result tier get %s: %v", key, err))
		return nil, false
	}
	return val, found
}

func (c *Cache) store(ctx context.Context, key string, val []byte, spec *Spec) {
	c.storeLocal(key, val, spec)
	ttl := spec.TTL
	if ttl <= 0 {
		ttl = c.ttl
	}
	span, ctx := trace.NewSpan(ctx, "qcache.ExternalSet")
	defer span.Finish()
	span.Annotate("key", key)
	if err := c.external.Set(ctx, key, val, ttl, spec.Tags); err != nil {
		tierErrors.Add(1)
		log.Warningf("%v", lterrors.Errorf(lterrors.CodeCache, "external result tier set %s: %v", key, err))
	}
}

func (c *Cache) storeLocal(key string, val []byte, spec *Spec) {
	d := spec.TTL
	if d <= 0 {
		d = cache.DefaultExpiration
	}
	c.local.Add(entryKey(key), val, d)
	if len(spec.Tags) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tag := range spec.Tags {
		keys := c.tags[tag]
		if keys == nil {
			keys = make(map[string]struct{})
			c.tags[tag] = keys
		}
		keys[key] = struct{}{}
		if len(keys)%256 == 0 {
			// Amortized sweep so a hot tag does not pin the key history
			// of entries the local tier already expired.
			for k := range keys {
				if _, ok := c.local.Get(entryKey(k)); !ok {
					delete(keys, k)
				}
			}
		}
	}
}
