package simulator

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Strategy decides whether and when a response is published.
type Strategy interface {
	Deliver(ctx context.Context, publish func())
}

// AutoRespond publishes after an optional fixed delay.
type AutoRespond struct {
	Delay time.Duration
}

// Deliver implements Strategy.
func (a AutoRespond) Deliver(ctx context.Context, publish func()) {
	if !sleep(ctx, a.Delay) {
		return
	}
	publish()
}

// RandomDrop drops responses with the configured probability and waits for
// the specified delay before publishing the others.
type RandomDrop struct {
	Delay    time.Duration
	DropRate float64
}

// Deliver implements Strategy.
func (r RandomDrop) Deliver(ctx context.Context, publish func()) {
	if r.DropRate > 0 {
		rngMu.Lock()
		drop := rng.Float64() < r.DropRate
		rngMu.Unlock()
		if drop {
			return
		}
	}
	if !sleep(ctx, r.Delay) {
		return
	}
	publish()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
