//go:build deadlock

// Package syncutil provides the locks guarding an RCX link.
// This file is compiled when building with -tags=deadlock, swapping in
// github.com/sasha-s/go-deadlock so a stuck exchange reports lock holders.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex wraps deadlock.Mutex for deadlock detection.
type Mutex struct {
	deadlock.Mutex
}
