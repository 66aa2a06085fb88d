// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens a fixed-size pool of zombiezen.com/go/sqlite
// connections with the pragmas interterm's local stores expect: WAL
// journaling, NORMAL synchronous, and a busy timeout so the companion's
// writers wait rather than fail when two sessions finish commands at
// once.
//
// Connections are not safe for concurrent use. Each goroutine takes
// one, works, and puts it back:
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
package sqlitepool
