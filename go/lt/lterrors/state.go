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

package lterrors

// State identifies the backend condition behind an execution error. It is
// what ends up in the GraphQL extensions.code field, so the names are part
// of the client contract.
type State int

const (
	// Undefined is the zero state.
	Undefined State = iota

	// constraint violations
	UniqueViolation
	ForeignKeyViolation
	NotNullViolation
	CheckViolation

	// source conditions
	SourceUnreachable
	Timeout
	AccessDenied
)

func (s State) String() string {
	switch s {
	case UniqueViolation:
		return "UNIQUE_VIOLATION"
	case ForeignKeyViolation:
		return "FOREIGN_KEY_VIOLATION"
	case NotNullViolation:
		return "NOT_NULL_VIOLATION"
	case CheckViolation:
		return "CHECK_VIOLATION"
	case SourceUnreachable:
		return "SOURCE_UNREACHABLE"
	case Timeout:
		return "TIMEOUT"
	case AccessDenied:
		return "ACCESS_DENIED"
	default:
		return ""
	}
}

// StateFromSQLState maps a SQLSTATE class 23 or 57 code to a State.
// Unrecognized codes map to Undefined.
func StateFromSQLState(sqlstate string) State {
	switch sqlstate {
	case "23505":
		return UniqueViolation
	case "23503":
		return ForeignKeyViolation
	case "23502":
		return NotNullViolation
	case "23514":
		return CheckViolation
	case "57014":
		return Timeout
	case "57P01", "57P02", "57P03", "08000", "08003", "08006":
		return SourceUnreachable
	default:
		return Undefined
	}
}

// StateFromMySQLErrno maps a MySQL server error number to a State.
func StateFromMySQLErrno(errno uint16) State {
	switch errno {
	case 1062, 1557, 1569, 1586:
		return UniqueViolation
	case 1216, 1217, 1451, 1452:
		return ForeignKeyViolation
	case 1048, 1364:
		return NotNullViolation
	case 3819:
		return CheckViolation
	case 1317, 3024:
		return Timeout
	case 1040, 1053, 2002, 2003, 2006, 2013:
		return SourceUnreachable
	default:
		return Undefined
	}
}
