// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/cabfleet/authgate/internal/auth"
)

func TestLimiterCheckAndRecord(t *testing.T) {
	t.Run("admits up to threshold", func(t *testing.T) {
		l := auth.NewLimiter(3, time.Minute)
		defer l.Stop()

		for i := 0; i < 3; i++ {
			d := l.CheckAndRecord("client-a")
			assert.True(t, d.Admit, "attempt %d should be admitted", i+1)
		}

		d := l.CheckAndRecord("client-a")
		assert.False(t, d.Admit)
		assert.Greater(t, d.RetryAfter, time.Duration(0))
		assert.LessOrEqual(t, d.RetryAfter, time.Minute)
	})

	t.Run("rejection does not extend the window", func(t *testing.T) {
		l := auth.NewLimiter(1, 50*time.Millisecond)
		defer l.Stop()

		assert.True(t, l.CheckAndRecord("client-a").Admit)

		// Hammer past the threshold; the window must still elapse on schedule.
		for i := 0; i < 5; i++ {
			assert.False(t, l.CheckAndRecord("client-a").Admit)
		}

		time.Sleep(60 * time.Millisecond)
		assert.True(t, l.CheckAndRecord("client-a").Admit)
	})

	t.Run("keys are independent", func(t *testing.T) {
		l := auth.NewLimiter(1, time.Minute)
		defer l.Stop()

		assert.True(t, l.CheckAndRecord("client-a").Admit)
		assert.False(t, l.CheckAndRecord("client-a").Admit)
		assert.True(t, l.CheckAndRecord("client-b").Admit)
	})

	t.Run("zero settings fall back to defaults", func(t *testing.T) {
		l := auth.NewLimiter(0, 0)
		defer l.Stop()

		for i := 0; i < auth.DefaultRateLimitThreshold; i++ {
			assert.True(t, l.CheckAndRecord("client-a").Admit)
		}
		assert.False(t, l.CheckAndRecord("client-a").Admit)
	})
}

func TestLimiterConcurrentAccess(t *testing.T) {
	l := auth.NewLimiter(100, time.Minute)
	defer l.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	// 20 goroutines x 10 requests over one key: exactly 100 admissions.
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if l.CheckAndRecord("shared").Admit {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, admitted)

	// Separate keys under contention stay unaffected.
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			d := l.CheckAndRecord(fmt.Sprintf("client-%d", n))
			assert.True(t, d.Admit)
		}(g)
	}
	wg.Wait()
}

func TestLimiterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := auth.NewLimiter(1, time.Minute)

	// Stop is idempotent.
	l.Stop()
	l.Stop()

	// Admission still works after Stop; only the sweep is gone.
	assert.True(t, l.CheckAndRecord("client-a").Admit)
}
