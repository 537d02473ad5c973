package syncer

import (
	"context"
	"time"

	"github.com/kevinms/leakybucket-go"
)

// RateGate is a blocking token gate over a leaky bucket. Every RPC call
// acquires one token; when the bucket is full the caller sleeps until a
// token has leaked.
type RateGate struct {
	bucket   *leakybucket.LeakyBucket
	interval time.Duration
}

// NewRateGate allows requests per seconds, with threefold burst capacity.
func NewRateGate(requests int64, seconds float64) *RateGate {
	rate := float64(requests) / seconds
	return &RateGate{
		bucket:   leakybucket.NewLeakyBucket(rate, requests*3),
		interval: time.Duration(float64(time.Second) / rate),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (g *RateGate) Wait(ctx context.Context) error {
	for g.bucket.Add(1) == 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.interval):
		}
	}
	return nil
}
