// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package sync2_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"metatree.io/metatree/internal/sync2"
)

func TestLimiterLimit(t *testing.T) {
	const limit = 3

	limiter := sync2.NewLimiter(limit)

	var inFlight, maxInFlight int64
	var mu sync.Mutex

	for i := 0; i < 32; i++ {
		started := limiter.Go(context.Background(), func() {
			current := atomic.AddInt64(&inFlight, 1)
			mu.Lock()
			if current > maxInFlight {
				maxInFlight = current
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
		})
		require.True(t, started)
	}
	limiter.Wait()

	require.True(t, maxInFlight <= limit)
}

func TestLimiterCanceled(t *testing.T) {
	limiter := sync2.NewLimiter(1)

	block := make(chan struct{})
	started := limiter.Go(context.Background(), func() { <-block })
	require.True(t, started)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, limiter.Go(ctx, func() {}))

	close(block)
	limiter.Wait()
}
