//go:build !deadlock

// Package syncutil provides the locks guarding an RCX link.
// By default a plain sync.Mutex is used. Build with -tags=deadlock to enable
// deadlock detection via github.com/sasha-s/go-deadlock.
package syncutil

import "sync"

// Mutex wraps sync.Mutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.Mutex to expose its interface
type Mutex struct {
	sync.Mutex
}
