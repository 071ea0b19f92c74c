package scriptloader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsCompletionsOnWaitingGoroutine(t *testing.T) {
	loop := NewLoop(context.Background())
	var got []string

	for _, name := range []string{"a", "b", "c"} {
		name := name // per-iteration copy; module targets go 1.21 loop semantics
		loop.Go(func(context.Context) ([]byte, error) {
			return []byte(name), nil
		}, func(payload []byte, err error) {
			require.NoError(t, err)
			got = append(got, string(payload))
			if string(payload) == "a" {
				loop.Post(func() { got = append(got, "posted") })
			}
		})
	}
	assert.Positive(t, loop.Pending())

	require.NoError(t, loop.Wait(context.Background()))
	assert.ElementsMatch(t, []string{"a", "b", "c", "posted"}, got)
	assert.Zero(t, loop.Pending())
}

func TestLoopJoinsRaisedErrors(t *testing.T) {
	loop := NewLoop(nil)
	first := errors.New("first")
	second := errors.New("second")

	loop.Raise(first)
	loop.Raise(nil)
	loop.Post(func() { loop.Raise(second) })

	err := loop.Wait(context.Background())
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)

	assert.NoError(t, loop.Wait(context.Background()))
}

func TestLoopWaitHonorsContext(t *testing.T) {
	loop := NewLoop(context.Background())
	release := make(chan struct{})
	defer close(release)

	loop.Go(func(ctx context.Context) ([]byte, error) {
		<-release
		return nil, nil
	}, func([]byte, error) {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := loop.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, loop.Pending())
}

func TestLoopFlushDoesNotBlock(t *testing.T) {
	loop := NewLoop(context.Background())
	ran := false
	loop.Post(func() { ran = true })
	loop.Flush()
	assert.True(t, ran)
	assert.Zero(t, loop.Pending())
}
