// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secret shields API credentials (spec.md §7's Authentication
// kind) from living as plain Go strings any longer than necessary between
// reading an environment variable and handing the value to a provider
// adapter constructor.
package secret

import (
	"os"

	"github.com/awnumar/memguard"
)

// Env reads key from the environment into a memguard enclave, wiping the
// interim buffer. ok is false when the variable is unset or empty.
func Env(key string) (enclave *memguard.Enclave, ok bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return nil, false
	}
	buf := memguard.NewBufferFromBytes([]byte(raw))
	return buf.Seal(), true
}

// Reveal opens enclave and returns its plaintext as a string. Call sites
// should hold the result only as long as the provider adapter needs it;
// the LockedBuffer backing the plaintext is destroyed before Reveal
// returns, so the copy made here to build the string is an unavoidable
// compromise for constructors that store the key as a plain field.
func Reveal(enclave *memguard.Enclave) (string, error) {
	if enclave == nil {
		return "", nil
	}
	lb, err := enclave.Open()
	if err != nil {
		return "", err
	}
	defer lb.Destroy()
	return string(lb.Bytes()), nil
}

// EnvString is a convenience wrapper around Env+Reveal for call sites that
// need the plaintext immediately, e.g. to pass into an adapter
// constructor's string parameter. Returns "" if the variable is unset.
func EnvString(key string) string {
	enclave, ok := Env(key)
	if !ok {
		return ""
	}
	plaintext, err := Reveal(enclave)
	if err != nil {
		return ""
	}
	return plaintext
}
