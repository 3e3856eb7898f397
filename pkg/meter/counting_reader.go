// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package meter

import (
	"io"
	"sync/atomic"
)

// CountingReader passes reads through to the wrapped reader and keeps a
// running total of the bytes returned. It does not buffer and never
// translates errors. Layer a bufio.Reader on top for line-oriented reads.
type CountingReader struct {
	r io.Reader
	n atomic.Int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n.Add(int64(n))
	}
	return n, err
}

// BytesReceived returns the number of bytes read so far.
func (c *CountingReader) BytesReceived() int64 {
	return c.n.Load()
}

// Close closes the wrapped reader if it is an io.Closer.
func (c *CountingReader) Close() error {
	if closer, ok := c.r.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
