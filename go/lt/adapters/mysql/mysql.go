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

// Package mysql is the database/sql adapter for MySQL sources. The
// dialect has no RETURNING, so mutations run on the exec path and the
// planner re-selects when the request asks for returned rows.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/latticeio/lattice/go/lt/adapters"
	"github.com/latticeio/lattice/go/lt/catalog"
	"github.com/latticeio/lattice/go/lt/lterrors"
	"github.com/latticeio/lattice/go/rowset"
)

func init() {
	adapters.Register("mysql", func(ctx context.Context, cfg adapters.Config) (adapters.Adapter, error) {
		return New(ctx, cfg)
	})
}

// Adapter executes pushed-down SQL against one MySQL database.
type Adapter struct {
	db *sql.DB
}

var _ adapters.Adapter = (*Adapter)(nil)

// New opens a connection pool against the DSN in cfg.Path and verifies
// the connection.
func New(ctx context.Context, cfg adapters.Config) (*Adapter, error) {
	db, err := sql.Open("mysql", cfg.Path)
	if err != nil {
		return nil, lterrors.Errorf(lterrors.CodeSchemaDefinition, "source %q: %v", cfg.Name, err)
	}
	// Pool settings per the driver's guidance.
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, lterrors.StateErrorf(lterrors.CodeExecution, lterrors.SourceUnreachable, "source %q: %v", cfg.Name, err)
	}
	return &Adapter{db: db}, nil
}

// Capabilities implements adapters.Adapter.
func (a *Adapter) Capabilities() catalog.Capabilities {
	return catalog.Capabilities{
		JoinPushdown:        true,
		AggregationPushdown: true,
	}
}

// Close implements adapters.Adapter.
func (a *Adapter) Close() error { return a.db.Close() }

// Execute implements adapters.Adapter.
func (a *Adapter) Execute(ctx context.Context, q *adapters.NativeQuery) (*rowset.Result, error) {
	if q.SQL == "" {
		return nil, lterrors.New(lterrors.CodePlanning, "mysql adapter requires a SQL statement")
	}
	if q.Exec {
		res, err := a.db.ExecContext(ctx, q.SQL, q.Args...)
		if err != nil {
			return nil, mapError(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, mapError(err)
		}
		return &rowset.Result{RowsAffected: uint64(affected)}, nil
	}

	rows, err := a.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, mapError(err)
	}
	fields := q.Fields
	if len(fields) != len(cols) {
		fields = make([]rowset.Field, len(cols))
		for i, name := range cols {
			fields[i] = rowset.Field{Name: name}
		}
	}

	result := &rowset.Result{Fields: fields}
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, mapError(err)
		}
		row := make(rowset.Row, len(cols))
		for i, v := range raw {
			if fields[i].Type == rowset.Unknown {
				// The driver hands back []byte for text protocol
				// results; keep untyped columns readable.
				if b, ok := v.([]byte); ok {
					row[i] = string(b)
				} else {
					row[i] = v
				}
				continue
			}
			cv, err := rowset.CoerceValue(fields[i].Type, fields[i].List, v)
			if err != nil {
				return nil, lterrors.Wrapf(err, "column %q", fields[i].Name)
			}
			row[i] = cv
		}
		result.AppendRow(row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

func mapError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		state := lterrors.StateFromMySQLErrno(myErr.Number)
		return lterrors.StateErrorf(lterrors.CodeExecution, state, "mysql: %s", myErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return lterrors.StateErrorf(lterrors.CodeExecution, lterrors.Timeout, "mysql: %v", err)
	}
	if errors.Is(err, context.Canceled) {
		return lterrors.Wrap(err, "mysql")
	}
	return lterrors.StateErrorf(lterrors.CodeExecution, lterrors.SourceUnreachable, "mysql: %v", err)
}
