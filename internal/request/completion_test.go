package request

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/regionkv/kvengine/internal/metrics"
)

type recordingSink struct {
	latencies []string
	outcomes  []string
}

func (r *recordingSink) ObserveLatency(op string, _ time.Duration) { r.latencies = append(r.latencies, op) }
func (r *recordingSink) IncCounter(op, outcome string) {
	r.outcomes = append(r.outcomes, op+":"+outcome)
}

func TestDispatchSuccessPath(t *testing.T) {
	sink := &recordingSink{}
	c := NewChanCompletion[int]()

	Dispatch(zap.NewNop(), sink, "GET", []byte("k"), c, func() (int, error) {
		return 42, nil
	})

	v, err := c.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, []string{"GET:success"}, sink.outcomes)
}

func TestDispatchFailurePathWrapsError(t *testing.T) {
	sink := &recordingSink{}
	c := NewChanCompletion[int]()
	boom := errors.New("boom")

	Dispatch(zap.NewNop(), sink, "PUT", []byte("k"), c, func() (int, error) {
		return 0, boom
	})

	_, err := c.Wait(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "Fail to [PUT]")
	require.Equal(t, []string{"PUT:failure"}, sink.outcomes)
}

func TestDispatchRecoversPanic(t *testing.T) {
	sink := &recordingSink{}
	c := NewChanCompletion[int]()

	Dispatch(zap.NewNop(), sink, "MERGE", []byte("k"), c, func() (int, error) {
		panic("kaboom")
	})

	_, err := c.Wait(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "MERGE")
	require.Equal(t, []string{"MERGE:failure"}, sink.outcomes)
}

func TestSyncHelper(t *testing.T) {
	v, err := Sync(func(c Completion[string]) {
		c.SetSuccess("done")
	})
	require.NoError(t, err)
	require.Equal(t, "done", v)
}

func TestChanCompletionOnlyFiresOnce(t *testing.T) {
	c := NewChanCompletion[int]()
	c.SetSuccess(1)
	c.SetSuccess(2) // must be ignored; channel has capacity 1

	v, err := c.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestChanCompletionRespectsContextCancellation(t *testing.T) {
	c := NewChanCompletion[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

var _ metrics.Sink = (*recordingSink)(nil)
