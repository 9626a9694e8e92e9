// Package request implements the closure-completing operation dispatch:
// every public engine operation takes a completion sink with two
// terminals, SetSuccess and SetFailure, exactly one of which fires.
// Dispatch additionally times the call, reports the duration to a
// metrics sink, logs failures with key context, and recovers panics at
// the boundary so they surface as a failure terminal instead of
// crashing the caller, the same time.Now/time.Since-around-the-call
// shape used to time every HTTP request in the logging middleware.
package request

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/regionkv/kvengine/internal/metrics"
)

// Completion is the closure-completing sink every operation writes its
// outcome to. Exactly one of SetSuccess or SetFailure is invoked.
type Completion[T any] interface {
	SetSuccess(value T)
	SetFailure(err error)
}

type result[T any] struct {
	value T
	err   error
}

// ChanCompletion is a channel-backed Completion usable by tests and CLI
// tools that want to block for the outcome.
type ChanCompletion[T any] struct {
	ch   chan result[T]
	once sync.Once
}

// NewChanCompletion returns a ready-to-use ChanCompletion.
func NewChanCompletion[T any]() *ChanCompletion[T] {
	return &ChanCompletion[T]{ch: make(chan result[T], 1)}
}

// SetSuccess implements Completion.
func (c *ChanCompletion[T]) SetSuccess(value T) {
	c.once.Do(func() { c.ch <- result[T]{value: value} })
}

// SetFailure implements Completion.
func (c *ChanCompletion[T]) SetFailure(err error) {
	c.once.Do(func() { c.ch <- result[T]{err: err} })
}

// Wait blocks until the completion fires or ctx is done.
func (c *ChanCompletion[T]) Wait(ctx context.Context) (T, error) {
	select {
	case r := <-c.ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Sync runs fn against a fresh ChanCompletion and blocks for the result,
// for callers that prefer a direct (value, error) return over a
// completion callback.
func Sync[T any](fn func(Completion[T])) (T, error) {
	c := NewChanCompletion[T]()
	fn(c)
	return c.Wait(context.Background())
}

// Dispatch wraps a synchronous operation body with timing, metrics,
// structured logging, and panic recovery, converting any error (or
// recovered panic) into completion.SetFailure with a short, stable
// reason string naming the operation: "Fail to [OP]".
func Dispatch[T any](log *zap.Logger, sink metrics.Sink, op string, key []byte, completion Completion[T], fn func() (T, error)) {
	start := time.Now()

	value, err := func() (v T, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered in operation",
					zap.String("op", op),
					zap.ByteString("key", key),
					zap.Any("recover", r),
					zap.Stack("stack"),
				)
				err = fmt.Errorf("panic in [%s]: %v", op, r)
			}
		}()
		return fn()
	}()

	elapsed := time.Since(start)
	sink.ObserveLatency(op, elapsed)

	if err != nil {
		sink.IncCounter(op, "failure")
		log.Error("operation failed",
			zap.String("op", op),
			zap.ByteString("key", key),
			zap.Duration("latency", elapsed),
			zap.Error(err),
		)
		completion.SetFailure(fmt.Errorf("Fail to [%s]: %w", op, err))
		return
	}

	sink.IncCounter(op, "success")
	log.Debug("operation completed",
		zap.String("op", op),
		zap.ByteString("key", key),
		zap.Duration("latency", elapsed),
	)
	completion.SetSuccess(value)
}
