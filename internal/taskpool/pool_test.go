package taskpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ProcessesAllItems(t *testing.T) {
	t.Parallel()
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}

	pool := New(3, func(ctx context.Context, item int, workerCtx *Ctx) (int, error) {
		return item * item, nil
	})

	outcome := pool.Run(context.Background(), items)
	results := outcome.Flatten()

	require.Len(t, results, len(items))
	sum := 0
	for _, r := range results {
		sum += r
	}
	assert.Equal(t, 1+4+9+16+25+36+49+64, sum)
	assert.Nil(t, outcome.Raise(func(string, ...any) {}))
}

func TestRun_ErrorTerminatesThatWorkerOnly(t *testing.T) {
	t.Parallel()
	items := []int{1, 2, 3}

	pool := New(1, func(ctx context.Context, item int, workerCtx *Ctx) (int, error) {
		if item == 2 {
			return 0, errors.New("boom")
		}
		return item, nil
	})

	outcome := pool.Run(context.Background(), items)

	var warnings []string
	err := outcome.Raise(func(format string, args ...any) {
		warnings = append(warnings, format)
	})
	require.Error(t, err)
	assert.Len(t, warnings, 1)
	assert.Len(t, outcome.Flatten(), 1, "the worker must stop at its first error, leaving item 3 unprocessed")
}

func TestRun_PanicIsRecoveredAsError(t *testing.T) {
	t.Parallel()
	items := []int{1}

	pool := New(1, func(ctx context.Context, item int, workerCtx *Ctx) (int, error) {
		panic("kaboom")
	})

	outcome := pool.Run(context.Background(), items)
	err := outcome.Raise(func(string, ...any) {})
	require.Error(t, err)
}

func TestRun_WorkerCtxIsReusedPerWorker(t *testing.T) {
	t.Parallel()
	items := []int{1, 2, 3, 4, 5}

	pool := New(1, func(ctx context.Context, item int, workerCtx *Ctx) (int, error) {
		if workerCtx.Value == nil {
			workerCtx.Value = 0
		}
		workerCtx.Value = workerCtx.Value.(int) + 1
		return workerCtx.Value.(int), nil
	})

	outcome := pool.Run(context.Background(), items)
	results := outcome.Flatten()
	require.Len(t, results, 5)
	assert.Equal(t, 5, results[len(results)-1], "a single worker's ctx accumulates across every item it handles")
}

func TestRun_ContextCancellationStopsWorkers(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var processed int32
	items := make([]int, 100)
	pool := New(4, func(ctx context.Context, item int, workerCtx *Ctx) (int, error) {
		atomic.AddInt32(&processed, 1)
		return item, nil
	})

	outcome := pool.Run(ctx, items)
	_ = outcome.Raise(func(string, ...any) {})
	assert.Less(t, int(processed), len(items), "cancellation should stop workers before processing every item")
}

func TestDefaultWorkers_AtLeastTwo(t *testing.T) {
	t.Parallel()
	assert.GreaterOrEqual(t, DefaultWorkers(), 2)
}
