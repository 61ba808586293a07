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
)

// ExternalTier is the contract for the shared, out-of-process result
// tier. Implementations must treat a missing key as (nil, false, nil),
// not an error: errors are reserved for tier failures, which the cache
// degrades around instead of failing the request.
type ExternalTier interface {
	// Get returns the stored value for key, or found=false on a miss.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key for ttl and indexes it under each tag
	// so InvalidateByTag can find it later. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error

	// InvalidateByTag drops every entry indexed under tag.
	InvalidateByTag(ctx context.Context, tag string) error
}

// NullTier is the no-op external tier used when no shared backend is
// configured. Every lookup misses and every write succeeds.
type NullTier struct{}

var _ ExternalTier = NullTier{}

// Get always misses.
func (NullTier) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set discards the value.
func (NullTier) Set(context.Context, string, []byte, time.Duration, []string) error { return nil }

// InvalidateByTag does nothing.
func (NullTier) InvalidateByTag(context.Context, string) error { return nil }
