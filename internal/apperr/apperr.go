// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apperr implements the error taxonomy of spec.md §7: Configuration,
// Transient remote, Authentication, Parse, Graph inconsistency, Storage, and
// Cancellation. Each kind maps to a CLI exit code via ExitCode.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind is one of the taxonomy's error categories.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindTransient     Kind = "transient_remote"
	KindAuth          Kind = "authentication"
	KindParse         Kind = "parse"
	KindGraph         Kind = "graph_inconsistency"
	KindStorage       Kind = "storage"
	KindCancellation  Kind = "cancellation"
)

// AppError is the common shape surfaced to the command layer.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// New constructs an AppError of the given kind.
func New(kind Kind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: cause}
}

// Configuration wraps a fatal, user-remediable configuration problem:
// missing/invalid credentials, incompatible model dimension, schema
// mismatch.
func Configuration(message string, cause error) *AppError {
	return New(KindConfiguration, message, cause)
}

// Transient wraps a retryable remote failure (timeout, 5xx, rate limit).
func Transient(message string, cause error) *AppError {
	return New(KindTransient, message, cause)
}

// Auth wraps a 401/403 — never retried, fails fast.
func Auth(message string, cause error) *AppError {
	return New(KindAuth, message, cause)
}

// Parse wraps a tree-sitter parse failure. Non-fatal to the caller: the
// file still gets a file-level unit.
func Parse(message string, cause error) *AppError {
	return New(KindParse, message, cause)
}

// Graph wraps a dangling-edge inconsistency discovered at build time.
// Silently dropped by the graph builder; the aggregate count is reported
// at index completion, not surfaced per-edge.
func Graph(message string, cause error) *AppError {
	return New(KindGraph, message, cause)
}

// Storage wraps a fatal IO or corruption error from the index store.
func Storage(message string, cause error) *AppError {
	return New(KindStorage, message, cause)
}

// IsCancellation reports whether err represents a cancellation rather than
// a failure, so callers can distinguish partial results from errors.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ExitCode maps an error to the CLI exit code contract of spec.md §6:
// 0 success, 1 usage error, 2 runtime error (IO, provider, parse),
// 3 configuration error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if IsCancellation(err) {
		return 2
	}
	var ae *AppError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case KindConfiguration, KindAuth:
			return 3
		case KindTransient, KindParse, KindGraph, KindStorage:
			return 2
		}
	}
	return 2
}
