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

package engine

import (
	"context"
	"time"

	"github.com/latticeio/lattice/go/lt/qcache"
	"github.com/latticeio/lattice/go/rowset"
)

// Cached wraps a subtree with the result cache. The subtree executes
// at most once per key per node while concurrent identical requests
// wait and share.
//
// Keys carry the caller's role, so two roles never see each other's
// rows even when their queries match.
type Cached struct {
	Input Primitive

	// Key pins an explicit cache key. Empty derives one per request
	// from role, subtree text and variables.
	Key string
	// KeyText is the normalized subtree text hashed into derived
	// keys. Empty falls back to the whole query text.
	KeyText string

	TTL  time.Duration
	Tags []string
	// Bypass skips both tiers but records the lookup, for fields
	// under a cache directive overridden per request.
	Bypass bool

	// Invalidate executes the subtree without touching either tier and
	// then purges Tags from both, the invalidate-then-read form.
	Invalidate bool
}

var _ Primitive = (*Cached)(nil)

// Execute implements Primitive.
func (c *Cached) Execute(ctx context.Context, ec *ExecContext) (*rowset.Result, error) {
	if ec.Cache == nil {
		return c.Input.Execute(ctx, ec)
	}
	if c.Invalidate {
		res, err := c.Input.Execute(ctx, ec)
		if err != nil {
			return nil, err
		}
		if len(c.Tags) > 0 {
			ec.Cache.Invalidate(ctx, c.Tags...)
		}
		return res, nil
	}
	spec := &qcache.Spec{
		Key:    c.Key,
		TTL:    c.TTL,
		Tags:   c.Tags,
		Bypass: c.Bypass,
	}
	if spec.Key == "" {
		text := c.KeyText
		if text == "" {
			text = ec.QueryText
		}
		spec.Key = qcache.ResultKey(ec.Role, text, ec.Variables)
	}
	data, _, err := ec.Cache.Fetch(ctx, spec, func(ctx context.Context) ([]byte, error) {
		res, err := c.Input.Execute(ctx, ec)
		if err != nil {
			return nil, err
		}
		return encodeResult(res)
	})
	if err != nil {
		return nil, err
	}
	return decodeResult(data)
}

// Description implements Primitive.
func (c *Cached) Description() PrimitiveDescription {
	other := map[string]any{}
	if c.Key != "" {
		other["Key"] = c.Key
	}
	if c.TTL > 0 {
		other["TTL"] = c.TTL.String()
	}
	if len(c.Tags) > 0 {
		other["Tags"] = c.Tags
	}
	if c.Bypass {
		other["Bypass"] = true
	}
	if c.Invalidate {
		other["Invalidate"] = true
	}
	return PrimitiveDescription{
		OperatorType: "Cached",
		Other:        other,
		Inputs:       []PrimitiveDescription{c.Input.Description()},
	}
}
