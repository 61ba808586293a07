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

// Package postgres is the pgx-backed adapter for PostgreSQL sources,
// including TimescaleDB and PostGIS extensions. It is the only
// reference adapter with spatial pushdown.
package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

func init() {
	adapters.Register("postgres", func(ctx context.Context, cfg adapters.Config) (adapters.Adapter, error) {
		return New(ctx, cfg)
	})
}

// Adapter executes pushed-down SQL against one PostgreSQL database.
type Adapter struct {
	pool *pgxpool.Pool
}

var _ adapters.Adapter = (*Adapter)(nil)

// New opens a pool against the DSN in cfg.Path and verifies the
// connection.
func New(ctx context.Context, cfg adapters.Config) (*Adapter, error) {
	pool, err := pgxpool.New(ctx, cfg.Path)
	if err != nil {
		return nil, lterrors.Errorf(lterrors.CodeSchemaDefinition, "source %q: %v", cfg.Name, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, lterrors.StateErrorf(lterrors.CodeExecution, lterrors.SourceUnreachable, "source %q: %v", cfg.Name, err)
	}
	return &Adapter{pool: pool}, nil
}

// Capabilities implements adapters.Adapter.
func (a *Adapter) Capabilities() catalog.Capabilities {
	return catalog.Capabilities{
		JoinPushdown:        true,
		AggregationPushdown: true,
		SupportsSpatial:     true,
	}
}

// Close implements adapters.Adapter.
func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

// Execute implements adapters.Adapter. Mutations run through the same
// path: RETURNING rows are collected like any select, and the command
// tag supplies the affected count.
func (a *Adapter) Execute(ctx context.Context, q *adapters.NativeQuery) (*rowset.Result, error) {
	if q.SQL == "" {
		return nil, lterrors.New(lterrors.CodePlanning, "postgres adapter requires a SQL statement")
	}
	rows, err := a.pool.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	result := &rowset.Result{Fields: resultFields(rows, q.Fields)}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, mapError(err)
		}
		row := make(rowset.Row, len(vals))
		for i, v := range vals {
			cv, err := coerceCell(result.Fields, i, v)
			if err != nil {
				return nil, lterrors.Wrapf(err, "column %q", result.Fields[i].Name)
			}
			row[i] = cv
		}
		result.AppendRow(row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	result.RowsAffected = uint64(rows.CommandTag().RowsAffected())
	return result, nil
}

// resultFields prefers the declared columns; when the statement shape
// does not match (function results, raw views) the driver metadata
// wins.
func resultFields(rows pgx.Rows, declared []rowset.Field) []rowset.Field {
	descs := rows.FieldDescriptions()
	if len(declared) == len(descs) {
		return declared
	}
	fields := make([]rowset.Field, len(descs))
	for i, d := range descs {
		fields[i] = rowset.Field{Name: d.Name}
	}
	return fields
}

func coerceCell(fields []rowset.Field, i int, v any) (any, error) {
	v = normalizeDriverValue(v)
	if i >= len(fields) || fields[i].Type == rowset.Unknown {
		return v, nil
	}
	return rowset.CoerceValue(fields[i].Type, fields[i].List, v)
}

// normalizeDriverValue unwraps pgx driver types that the shared
// coercion layer does not know about.
func normalizeDriverValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		if f, err := t.Float64Value(); err == nil && f.Valid {
			return f.Float64
		}
		return v
	case [16]byte:
		return uuid.UUID(t).String()
	default:
		return v
	}
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		state := lterrors.StateFromSQLState(pgErr.Code)
		return lterrors.StateErrorf(lterrors.CodeExecution, state, "postgres: %s", pgErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return lterrors.StateErrorf(lterrors.CodeExecution, lterrors.Timeout, "postgres: %v", err)
	}
	if errors.Is(err, context.Canceled) {
		return lterrors.Wrap(err, "postgres")
	}
	return lterrors.StateErrorf(lterrors.CodeExecution, lterrors.SourceUnreachable, "postgres: %v", err)
}
