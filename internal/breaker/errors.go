// Matchsync - Resilient Match Event Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/matchsync

package breaker

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCircuitOpen is returned without calling the operation while the
	// circuit is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when every half-open trial slot is taken.
	ErrTooManyRequests = errors.New("circuit breaker: too many half-open requests")

	// ErrCallTimeout is returned when an operation exceeds CallTimeout.
	ErrCallTimeout = errors.New("circuit breaker: call timed out")
)

// OpenError reports which breaker rejected a call and when it will next
// admit one. It matches ErrCircuitOpen with errors.Is.
type OpenError struct {
	Name        string
	NextAttempt time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open until %s", e.Name, e.NextAttempt.Format(time.RFC3339))
}

func (e *OpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// IsRejection reports whether err came from the breaker refusing a call
// rather than from the operation itself.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}
