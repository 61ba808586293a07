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

package sqlgen

import (
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/latticeio/lattice/go/lt/lterrors"
)

// Dialect covers the spots where generated SQL diverges between
// backends. Everything else renders identically and lives in the
// builder.
type Dialect interface {
	Name() string
	PlaceholderFormat() sq.PlaceholderFormat
	QuoteIdentifier(name string) string

	// ILike is the case-insensitive LIKE predicate.
	ILike(expr string, pattern any) sq.Sqlizer
	// Regexp is the regular expression match predicate.
	Regexp(expr string, pattern any) sq.Sqlizer
	// ArrayFilter renders one list-column operator: eq, contains or
	// intersects.
	ArrayFilter(op, expr string, values []any) (sq.Sqlizer, error)
	// BindList converts a list value into a bindable argument.
	BindList(values []any) (any, error)

	// GeometryValue renders a geometry expression from GeoJSON text.
	GeometryValue(text string, srid int64) (string, []any)
	// GeometryWire renders a geometry column for transport as GeoJSON.
	GeometryWire(expr string) string
	// GeometryMeasure renders AREA, LENGTH or PERIMETER of a geometry.
	GeometryMeasure(measure, expr string) (string, error)

	// TimeBucket truncates a temporal expression to a bucket. The spec
	// is an interval for hypertables and a unit name otherwise.
	TimeBucket(expr, spec string, hypertable bool) (string, []any, error)
	// TimePart extracts one date part as an integer.
	TimePart(part, expr string) (string, error)

	// AggregateExpr renders one aggregation function application.
	AggregateExpr(fn, expr, separator string) (string, []any, error)
	// JSONObject packs name/expression pairs into a JSON object.
	JSONObject(names, exprs []string) string
	// JSONArrayAgg aggregates an expression into a JSON array, empty
	// array when no rows qualify.
	JSONArrayAgg(expr string) string

	// SequenceNext renders the next value of a named sequence.
	SequenceNext(name string) (string, error)

	SupportsReturning() bool
	SupportsDistinctOn() bool
}

// For returns the dialect for a source type. Non-SQL sources have none.
func For(sourceType string) (Dialect, bool) {
	switch sourceType {
	case "postgres":
		return Postgres{}, true
	case "mysql":
		return MySQL{}, true
	}
	return nil, false
}

// truncUnits is the unit vocabulary shared by both dialects for time
// bucketing.
var truncUnits = map[string]bool{
	"year": true, "quarter": true, "month": true, "week": true,
	"day": true, "hour": true, "minute": true, "second": true,
}

// timeParts mirrors the TimePart enum of the generated schema.
var timeParts = map[string]bool{
	"YEAR": true, "QUARTER": true, "MONTH": true, "WEEK": true,
	"DAY": true, "HOUR": true, "MINUTE": true, "SECOND": true,
	"DOW": true, "DOY": true, "EPOCH": true,
}

func jsonText(values []any) (string, error) {
	text, err := json.Marshal(values)
	if err != nil {
		return "", lterrors.Errorf(lterrors.CodeQueryValidation, "invalid list value: %v", err)
	}
	return string(text), nil
}

// Postgres renders PostgreSQL, PostGIS and TimescaleDB SQL.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) PlaceholderFormat() sq.PlaceholderFormat { return sq.Dollar }

func (Postgres) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Postgres) ILike(expr string, pattern any) sq.Sqlizer {
	return sq.Expr(expr+" ILIKE ?", pattern)
}

func (Postgres) Regexp(expr string, pattern any) sq.Sqlizer {
	return sq.Expr(expr+" ~ ?", pattern)
}

func (Postgres) ArrayFilter(op, expr string, values []any) (sq.Sqlizer, error) {
	switch op {
	case "eq":
		return sq.Expr(expr+" = ?", values), nil
	case "contains":
		return sq.Expr(expr+" @> ?", values), nil
	case "intersects":
		return sq.Expr(expr+" && ?", values), nil
	}
	return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "operator %q is not valid for list fields", op)
}

func (Postgres) BindList(values []any) (any, error) { return values, nil }

func (Postgres) GeometryValue(text string, srid int64) (string, []any) {
	if srid == 0 {
		return "ST_GeomFromGeoJSON(?)", []any{text}
	}
	return fmt.Sprintf("ST_SetSRID(ST_GeomFromGeoJSON(?), %d)", srid), []any{text}
}

func (Postgres) GeometryWire(expr string) string {
	return "ST_AsGeoJSON(" + expr + ")::json"
}

func (Postgres) GeometryMeasure(measure, expr string) (string, error) {
	switch measure {
	case "AREA":
		return "ST_Area(" + expr + ")", nil
	case "LENGTH":
		return "ST_Length(" + expr + ")", nil
	case "PERIMETER":
		return "ST_Perimeter(" + expr + ")", nil
	}
	return "", lterrors.Errorf(lterrors.CodeQueryValidation, "unknown geometry measurement %q", measure)
}

func (Postgres) TimeBucket(expr, spec string, hypertable bool) (string, []any, error) {
	if hypertable {
		if strings.TrimSpace(spec) == "" {
			return "", nil, lterrors.New(lterrors.CodeQueryValidation, "empty bucket interval")
		}
		return "time_bucket(?::interval, " + expr + ")", []any{spec}, nil
	}
	unit := strings.ToLower(strings.TrimSpace(spec))
	if !truncUnits[unit] {
		return "", nil, lterrors.Errorf(lterrors.CodeQueryValidation, "unknown bucket unit %q", spec)
	}
	return "date_trunc(?, " + expr + ")", []any{unit}, nil
}

func (Postgres) TimePart(part, expr string) (string, error) {
	if !timeParts[part] {
		return "", lterrors.Errorf(lterrors.CodeQueryValidation, "unknown time part %q", part)
	}
	return "CAST(EXTRACT(" + part + " FROM " + expr + ") AS bigint)", nil
}

func (Postgres) AggregateExpr(fn, expr, separator string) (string, []any, error) {
	switch fn {
	case "count":
		return "count(" + expr + ")", nil, nil
	case "sum", "avg", "min", "max", "stddev", "variance", "bool_and", "bool_or":
		return fn + "(" + expr + ")", nil, nil
	case "list":
		return "json_agg(" + expr + ")", nil, nil
	case "any":
		return "(array_agg(" + expr + "))[1]", nil, nil
	case "last":
		return "(array_agg(" + expr + "))[cardinality(array_agg(" + expr + "))]", nil, nil
	case "string_agg":
		return "string_agg(" + expr + ", ?)", []any{separator}, nil
	}
	return "", nil, lterrors.Errorf(lterrors.CodeQueryValidation, "unknown aggregation %q", fn)
}

func (d Postgres) JSONObject(names, exprs []string) string {
	pairs := make([]string, 0, len(names))
	for i := range names {
		pairs = append(pairs, "'"+strings.ReplaceAll(names[i], "'", "''")+"', "+exprs[i])
	}
	return "json_build_object(" + strings.Join(pairs, ", ") + ")"
}

func (Postgres) JSONArrayAgg(expr string) string {
	return "coalesce(json_agg(" + expr + "), '[]'::json)"
}

func (Postgres) SequenceNext(name string) (string, error) {
	return "nextval('" + strings.ReplaceAll(name, "'", "''") + "')", nil
}

func (Postgres) SupportsReturning() bool  { return true }
func (Postgres) SupportsDistinctOn() bool { return true }

// MySQL renders MySQL 8 SQL. List columns are stored as JSON arrays.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) PlaceholderFormat() sq.PlaceholderFormat { return sq.Question }

func (MySQL) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySQL) ILike(expr string, pattern any) sq.Sqlizer {
	return sq.Expr("LOWER("+expr+") LIKE LOWER(?)", pattern)
}

func (MySQL) Regexp(expr string, pattern any) sq.Sqlizer {
	return sq.Expr(expr+" REGEXP ?", pattern)
}

func (MySQL) ArrayFilter(op, expr string, values []any) (sq.Sqlizer, error) {
	text, err := jsonText(values)
	if err != nil {
		return nil, err
	}
	switch op {
	case "eq":
		return sq.Expr(expr+" = CAST(? AS JSON)", text), nil
	case "contains":
		return sq.Expr("JSON_CONTAINS("+expr+", CAST(? AS JSON))", text), nil
	case "intersects":
		return sq.Expr("JSON_OVERLAPS("+expr+", CAST(? AS JSON))", text), nil
	}
	return nil, lterrors.Errorf(lterrors.CodeQueryValidation, "operator %q is not valid for list fields", op)
}

func (MySQL) BindList(values []any) (any, error) { return jsonText(values) }

func (MySQL) GeometryValue(text string, srid int64) (string, []any) {
	if srid == 0 {
		return "ST_GeomFromGeoJSON(?)", []any{text}
	}
	return fmt.Sprintf("ST_GeomFromGeoJSON(?, 1, %d)", srid), []any{text}
}

func (MySQL) GeometryWire(expr string) string {
	return "ST_AsGeoJSON(" + expr + ")"
}

func (MySQL) GeometryMeasure(measure, expr string) (string, error) {
	switch measure {
	case "AREA":
		return "ST_Area(" + expr + ")", nil
	case "LENGTH":
		return "ST_Length(" + expr + ")", nil
	case "PERIMETER":
		return "", lterrors.Wrap(ErrUnsupported, "PERIMETER on mysql")
	}
	return "", lterrors.Errorf(lterrors.CodeQueryValidation, "unknown geometry measurement %q", measure)
}

func (MySQL) TimeBucket(expr, spec string, hypertable bool) (string, []any, error) {
	unit := strings.ToLower(strings.TrimSpace(spec))
	switch unit {
	case "year":
		return "DATE_FORMAT(" + expr + ", '%Y-01-01')", nil, nil
	case "quarter":
		return "CONCAT(YEAR(" + expr + "), '-', LPAD((QUARTER(" + expr + ") - 1) * 3 + 1, 2, '0'), '-01')", nil, nil
	case "month":
		return "DATE_FORMAT(" + expr + ", '%Y-%m-01')", nil, nil
	case "week":
		return "DATE_FORMAT(DATE_SUB(" + expr + ", INTERVAL WEEKDAY(" + expr + ") DAY), '%Y-%m-%d')", nil, nil
	case "day":
		return "DATE_FORMAT(" + expr + ", '%Y-%m-%d')", nil, nil
	case "hour":
		return "DATE_FORMAT(" + expr + ", '%Y-%m-%d %H:00:00')", nil, nil
	case "minute":
		return "DATE_FORMAT(" + expr + ", '%Y-%m-%d %H:%i:00')", nil, nil
	case "second":
		return "DATE_FORMAT(" + expr + ", '%Y-%m-%d %H:%i:%s')", nil, nil
	}
	return "", nil, lterrors.Errorf(lterrors.CodeQueryValidation, "unknown bucket unit %q", spec)
}

func (MySQL) TimePart(part, expr string) (string, error) {
	switch part {
	case "YEAR":
		return "YEAR(" + expr + ")", nil
	case "QUARTER":
		return "QUARTER(" + expr + ")", nil
	case "MONTH":
		return "MONTH(" + expr + ")", nil
	case "WEEK":
		return "WEEK(" + expr + ", 3)", nil
	case "DAY":
		return "DAYOFMONTH(" + expr + ")", nil
	case "HOUR":
		return "HOUR(" + expr + ")", nil
	case "MINUTE":
		return "MINUTE(" + expr + ")", nil
	case "SECOND":
		return "SECOND(" + expr + ")", nil
	case "DOW":
		// DAYOFWEEK counts Sunday as 1; parts count Sunday as 0.
		return "DAYOFWEEK(" + expr + ") - 1", nil
	case "DOY":
		return "DAYOFYEAR(" + expr + ")", nil
	case "EPOCH":
		return "UNIX_TIMESTAMP(" + expr + ")", nil
	}
	return "", lterrors.Errorf(lterrors.CodeQueryValidation, "unknown time part %q", part)
}

func (MySQL) AggregateExpr(fn, expr, separator string) (string, []any, error) {
	switch fn {
	case "count":
		return "count(" + expr + ")", nil, nil
	case "sum", "avg", "min", "max":
		return fn + "(" + expr + ")", nil, nil
	case "stddev":
		return "stddev_samp(" + expr + ")", nil, nil
	case "variance":
		return "var_samp(" + expr + ")", nil, nil
	case "list":
		return "json_arrayagg(" + expr + ")", nil, nil
	case "any", "last":
		// mysql has no positional aggregates; both pick one group value.
		return "any_value(" + expr + ")", nil, nil
	case "string_agg":
		sep := strings.ReplaceAll(separator, `\`, `\\`)
		sep = strings.ReplaceAll(sep, "'", "''")
		return "group_concat(" + expr + " SEPARATOR '" + sep + "')", nil, nil
	case "bool_and":
		return "min(" + expr + ")", nil, nil
	case "bool_or":
		return "max(" + expr + ")", nil, nil
	}
	return "", nil, lterrors.Errorf(lterrors.CodeQueryValidation, "unknown aggregation %q", fn)
}

func (MySQL) JSONObject(names, exprs []string) string {
	pairs := make([]string, 0, len(names))
	for i := range names {
		pairs = append(pairs, "'"+strings.ReplaceAll(names[i], "'", "''")+"', "+exprs[i])
	}
	return "json_object(" + strings.Join(pairs, ", ") + ")"
}

func (MySQL) JSONArrayAgg(expr string) string {
	return "coalesce(json_arrayagg(" + expr + "), json_array())"
}

func (MySQL) SequenceNext(name string) (string, error) {
	return "", lterrors.Wrapf(ErrUnsupported, "sequence default %s on mysql", name)
}

func (MySQL) SupportsReturning() bool  { return false }
func (MySQL) SupportsDistinctOn() bool { return false }
