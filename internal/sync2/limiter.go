// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package sync2

import (
	"context"
	"sync"
)

// Limiter implements a bounded pool of concurrent goroutines.
type Limiter struct {
	limit   chan struct{}
	working sync.WaitGroup
}

// NewLimiter creates a new limiter allowing n concurrent goroutines.
func NewLimiter(n int) *Limiter {
	return &Limiter{
		limit: make(chan struct{}, n),
	}
}

// Go tries to start fn as a goroutine. When the limit is reached it blocks
// until a slot frees up or the context is canceled. It returns false when
// the context was canceled before fn could be started.
func (limiter *Limiter) Go(ctx context.Context, fn func()) bool {
	if ctx.Err() != nil {
		return false
	}

	select {
	case limiter.limit <- struct{}{}:
	case <-ctx.Done():
		return false
	}

	limiter.working.Add(1)
	go func() {
		defer func() {
			<-limiter.limit
			limiter.working.Done()
		}()
		fn()
	}()
	return true
}

// Wait waits for all running goroutines to finish.
func (limiter *Limiter) Wait() {
	limiter.working.Wait()
}
