package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func succeeding(context.Context) error { return nil }

func newTestBreaker(coolDown time.Duration) *Breaker {
	return New("test", Options{
		Timeout:      time.Second,
		FailureRatio: 0.5,
		Window:       10,
		MinCalls:     4,
		CoolDown:     coolDown,
	}, nil)
}

func TestTripsAtFailureRatio(t *testing.T) {
	b := newTestBreaker(time.Minute)
	ctx := context.Background()

	// 2 successes + 2 failures: ratio hits 0.5 exactly at MinCalls=4.
	require.NoError(t, b.Do(ctx, succeeding))
	require.NoError(t, b.Do(ctx, succeeding))
	require.ErrorIs(t, b.Do(ctx, failing), errBoom)
	require.ErrorIs(t, b.Do(ctx, failing), errBoom)

	// Now open: calls fail fast without touching the dependency.
	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestStaysClosedBelowMinCalls(t *testing.T) {
	b := newTestBreaker(time.Minute)
	ctx := context.Background()

	// 3 failures, but MinCalls=4: must not trip yet.
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Do(ctx, failing), errBoom)
	}
	assert.NoError(t, b.Do(ctx, succeeding))
}

func TestHalfOpenProbeSuccessCloses(t *testing.T) {
	b := newTestBreaker(20 * time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = b.Do(ctx, failing)
	}
	require.ErrorIs(t, b.Do(ctx, succeeding), ErrOpen)

	time.Sleep(30 * time.Millisecond)

	// Cool-down elapsed: one probe goes through, success closes the circuit
	// and resets the window.
	require.NoError(t, b.Do(ctx, succeeding))
	require.NoError(t, b.Do(ctx, succeeding))
	require.ErrorIs(t, b.Do(ctx, failing), errBoom)
	require.ErrorIs(t, b.Do(ctx, failing), errBoom)
	// 1 success + 2 failures post-reset: under MinCalls, still closed.
	assert.NoError(t, b.Do(ctx, succeeding))
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	b := newTestBreaker(20 * time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = b.Do(ctx, failing)
	}
	time.Sleep(30 * time.Millisecond)

	// Probe fails: straight back to open with a fresh cool-down.
	require.ErrorIs(t, b.Do(ctx, failing), errBoom)
	assert.ErrorIs(t, b.Do(ctx, succeeding), ErrOpen)

	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, b.Do(ctx, succeeding))
}

func TestTimeoutCountsAsFailure(t *testing.T) {
	b := New("slow", Options{
		Timeout:      10 * time.Millisecond,
		FailureRatio: 0.5,
		Window:       4,
		MinCalls:     2,
		CoolDown:     time.Minute,
	}, nil)
	ctx := context.Background()

	slow := func(c context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-c.Done():
			return c.Err()
		}
	}

	require.ErrorIs(t, b.Do(ctx, slow), context.DeadlineExceeded)
	require.ErrorIs(t, b.Do(ctx, slow), context.DeadlineExceeded)
	assert.ErrorIs(t, b.Do(ctx, succeeding), ErrOpen)
}

func TestSingleProbeDuringHalfOpen(t *testing.T) {
	b := newTestBreaker(10 * time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = b.Do(ctx, failing)
	}
	time.Sleep(20 * time.Millisecond)

	release := make(chan struct{})
	probeStarted := make(chan struct{})
	go func() {
		_ = b.Do(ctx, func(context.Context) error {
			close(probeStarted)
			<-release
			return nil
		})
	}()

	<-probeStarted
	// A concurrent caller while the probe is in flight is rejected.
	assert.ErrorIs(t, b.Do(ctx, succeeding), ErrOpen)
	close(release)
}
