/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2018 Kopano and its licensors
 */

// Package bpool provides a pool of reusable byte buffers for reading
// websocket and HTTP payloads.
package bpool

import (
	"bytes"
	"sync"
)

// MaxPooledSize is the largest buffer capacity which is kept in the pool.
// Larger buffers are left to the garbage collector.
const MaxPooledSize = 1048576

var bpool sync.Pool

// Get returns a buffer from the pool creating a new one if the pool is empty.
func Get() *bytes.Buffer {
	b, ok := bpool.Get().(*bytes.Buffer)
	if !ok {
		b = &bytes.Buffer{}
	}
	return b
}

// Put returns the provided buffer into the pool.
func Put(b *bytes.Buffer) {
	if b.Cap() > MaxPooledSize {
		return
	}
	b.Reset()
	bpool.Put(b)
}
