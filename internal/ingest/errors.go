// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// TimeoutError is returned when a call exceeds its deadline.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ingest %s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransportError covers unreachable servers, 5xx, 429 and auth failures.
// Retrying later may succeed.
type TransportError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("ingest %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ingest %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectionError is a business rejection: the server understood the
// request and refused it. Retrying the same payload cannot succeed.
type RejectionError struct {
	Op         string
	StatusCode int
	Reason     string
	Fields     map[string]string
}

func (e *RejectionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ingest %s rejected (%d): %s", e.Op, e.StatusCode, e.Reason)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "; %s: %s", k, e.Fields[k])
		}
	}
	return b.String()
}

// IsRejection reports whether err is a business rejection.
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// CountsAsFailure is the breaker error filter: business rejections do not
// count against the ingestion server's health.
func CountsAsFailure(err error) bool {
	return !IsRejection(err)
}
