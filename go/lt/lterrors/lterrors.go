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

// Package lterrors provides coded errors for the whole engine.
//
// Every error that crosses a package boundary carries a Code identifying the
// stage that produced it (schema load, validation, planning, execution,
// cache) and optionally a State with the backend condition (unique violation,
// timeout, ...). Codes and states survive wrapping, so call sites can use
// Wrapf freely and the coordinator can still classify the root cause.
package lterrors

import (
	"errors"
	"fmt"
)

// Code classifies an error by the stage that produced it.
type Code int32

const (
	// CodeUnknown is the zero Code. Errors from outside the engine
	// (io errors, context cancellation, ...) report it unless wrapped.
	CodeUnknown Code = iota

	// CodeSchemaDefinition covers catalog load failures: unknown
	// directives, bad directive locations, unresolved references,
	// duplicate names. Fatal for the offending catalog only.
	CodeSchemaDefinition

	// CodeQueryValidation covers per-request validation failures raised
	// before planning starts.
	CodeQueryValidation

	// CodePlanning covers failures turning a valid query into an
	// execution plan. Planning errors abort the request before any data
	// source is touched.
	CodePlanning

	// CodeExecution covers adapter and merge failures at run time.
	CodeExecution

	// CodeCache covers cache tier failures. Never fatal for a request.
	CodeCache
)

func (c Code) String() string {
	switch c {
	case CodeSchemaDefinition:
		return "SCHEMA_DEFINITION"
	case CodeQueryValidation:
		return "QUERY_VALIDATION"
	case CodePlanning:
		return "PLANNING"
	case CodeExecution:
		return "EXECUTION"
	case CodeCache:
		return "CACHE"
	default:
		return "UNKNOWN"
	}
}

// fundamental is an error with a code and a state but no wrapped cause.
type fundamental struct {
	msg   string
	code  Code
	state State
}

func (f *fundamental) Error() string   { return f.msg }
func (f *fundamental) ErrorCode() Code { return f.code }
func (f *fundamental) ErrorState() State {
	return f.state
}

// wrapped is an error annotating a cause. Code and state default to the
// cause's unless overridden at wrap time.
type wrapped struct {
	msg   string
	cause error
}

func (w *wrapped) Error() string { return w.msg + ": " + w.cause.Error() }
func (w *wrapped) Unwrap() error { return w.cause }

// New returns an error with the given code.
func New(code Code, msg string) error {
	return &fundamental{msg: msg, code: code}
}

// Errorf formats an error with the given code.
func Errorf(code Code, format string, args ...any) error {
	return &fundamental{msg: fmt.Sprintf(format, args...), code: code}
}

// NewState returns an execution error carrying a backend state.
func NewState(code Code, state State, msg string) error {
	return &fundamental{msg: msg, code: code, state: state}
}

// StateErrorf formats an execution error carrying a backend state.
func StateErrorf(code Code, state State, format string, args ...any) error {
	return &fundamental{msg: fmt.Sprintf(format, args...), code: code, state: state}
}

// Wrap annotates err with msg, preserving its code and state.
// Wrapping nil returns nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{msg: msg, cause: err}
}

// Wrapf annotates err with a formatted message, preserving its code and
// state. Wrapping nil returns nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapped{msg: fmt.Sprintf(format, args...), cause: err}
}

// ErrCode returns the code of err, walking the wrap chain. Errors without a
// code report CodeUnknown.
func ErrCode(err error) Code {
	var coded interface{ ErrorCode() Code }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return CodeUnknown
}

// ErrState returns the backend state of err, walking the wrap chain.
func ErrState(err error) State {
	var stateful interface{ ErrorState() State }
	if errors.As(err, &stateful) {
		return stateful.ErrorState()
	}
	return Undefined
}
