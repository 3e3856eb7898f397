// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"math/rand/v2"
	"time"
)

// JitterUp adds random jitter that only increases the duration.
//
// Example: JitterUp(time.Second, 0.25) returns 1s-1.25s
func JitterUp(base time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || base <= 0 {
		return base
	}
	if fraction > 1 {
		fraction = 1
	}
	jitter := rand.Float64() * float64(base) * fraction
	return base + time.Duration(jitter)
}

// Backoff returns an exponentially growing delay for the given attempt
// (starting at 1), capped at max and jittered upward by 20%.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return JitterUp(d, 0.2)
}
