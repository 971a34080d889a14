// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package provider

import (
	"context"
	"errors"
	"time"

	"github.com/claudemem/claudemem/internal/apperr"
)

// AuthError marks a 401/403 response. Never retried — fails fast
// (spec.md §4.1, §7).
type AuthError struct{ Err error }

func (e *AuthError) Error() string { return "authentication failed: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// ConnRefusedError marks a connection-refused failure. Never retried.
type ConnRefusedError struct{ Err error }

func (e *ConnRefusedError) Error() string { return "connection refused: " + e.Err.Error() }
func (e *ConnRefusedError) Unwrap() error { return e.Err }

// Retry runs fn up to DefaultMaxAttempts times with exponential backoff
// (base 1s, ×2 per attempt). Authentication and connection-refused errors
// fail fast without retry (spec.md §4.1).
func Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var authErr *AuthError
	var connErr *ConnRefusedError

	backoff := DefaultBackoffBase
	var lastErr error
	for attempt := 1; attempt <= DefaultMaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.As(err, &authErr) {
			return err
		}
		if errors.As(err, &connErr) {
			return err
		}
		if apperr.IsCancellation(err) {
			return err
		}
		lastErr = err
		if attempt == DefaultMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * DefaultBackoffFactor)
	}
	return apperr.Transient("exhausted retries", lastErr)
}
