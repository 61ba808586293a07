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

package compiler

import (
	"github.com/latticeio/lattice/go/rowset"
)

// emitAggregates writes the aggregation result object, the bucket key
// and the bucket row type for one data object. Row count is spelled
// _rows_count at the aggregation root.
func (c *run) emitAggregates(oi *objInfo) {
	obj := oi.obj

	agg := aggResultName(obj)
	c.w.open("type %s", agg)
	c.w.fieldf("_rows_count: BigInt!")
	c.bind(agg, "_rows_count", Binding{Kind: BindRowsCount, Object: obj.ID})
	for _, f := range obj.ScalarFields() {
		at := aggTypeFor(f.Scalar, f.List)
		if at == "" {
			continue
		}
		c.w.fieldf("%s: %s", f.Name, at)
		c.bind(agg, f.Name, Binding{Kind: BindScalar, Object: obj.ID, Field: f.Name})
	}
	c.w.close()

	if !oi.hasBucketKey {
		return
	}
	key := bucketKeyName(obj)
	c.w.open("type %s", key)
	for _, f := range obj.ScalarFields() {
		if !f.List && (f.Scalar == rowset.Timestamp || f.Scalar == rowset.Date) {
			c.w.fieldf("%s(bucket: String): %s", f.Name, f.Type.String())
			c.bind(key, f.Name, Binding{Kind: BindScalar, Object: obj.ID, Field: f.Name})
			part := "_" + f.Name + "_part"
			c.w.fieldf("%s(part: TimePart!): BigInt", part)
			c.bind(key, part, Binding{Kind: BindPart, Object: obj.ID, Field: f.Name})
			continue
		}
		c.w.fieldf("%s: %s", f.Name, f.Type.String())
		c.bind(key, f.Name, Binding{Kind: BindScalar, Object: obj.ID, Field: f.Name})
	}
	c.w.close()

	bucket := bucketName(obj)
	c.w.open("type %s", bucket)
	c.w.fieldf("key: %s!", key)
	c.bind(bucket, "key", Binding{Kind: BindBucketKey, Object: obj.ID})
	c.w.fieldf("aggregations: %s!", agg)
	c.bind(bucket, "aggregations", Binding{Kind: BindBucketAggs, Object: obj.ID})
	c.w.close()
}
