// go-rcx
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-rcx.
//
// go-rcx is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-rcx is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-rcx; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package rcx

import (
	"context"
	"fmt"
)

// RetryConfig bounds how often a single exchange is attempted. Attempts
// follow each other immediately: the link is half duplex and the tower's
// read timeout already spaces them out.
type RetryConfig struct {
	// MaxAttempts is the number of attempts for a retryable exchange
	MaxAttempts int
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{MaxAttempts: DefaultRetryCount}
}

// attempts returns how many tries an exchange gets.
func (c *RetryConfig) attempts(allowRetry bool) int {
	if !allowRetry || c == nil || c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

// AttemptFunc performs one attempt; attempt counts from 1.
type AttemptFunc func(attempt int) error

// RetryWithConfig runs fn up to maxAttempts times and returns nil on the
// first success. Every failure is recorded and the last one is returned once
// attempts run out. A fatal error, one that says the link itself is gone,
// ends the loop early. ctx is only consulted between attempts.
func RetryWithConfig(ctx context.Context, maxAttempts int, fn AttemptFunc) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry context cancelled: %w", err)
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsFatal(err) {
			return err
		}
		if attempt < maxAttempts {
			Debugf("attempt %d/%d failed, retrying: %v", attempt, maxAttempts, err)
		}
	}

	return lastErr
}
