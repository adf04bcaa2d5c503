package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/taskhive/taskhive/internal/metrics"

	"go.uber.org/zap"
)

// ErrOpen is returned without touching the dependency while the circuit is
// open. Callers translate it to a degraded-service condition; they must not
// retry through the breaker.
var ErrOpen = errors.New("circuit open: service degraded")

type state int

const (
	stClosed state = iota
	stOpen
	stHalfOpen
)

func (s state) String() string {
	switch s {
	case stOpen:
		return "open"
	case stHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

type Options struct {
	Timeout      time.Duration // per-call budget; exceeding it counts as a failure
	FailureRatio float64       // trip threshold over the rolling window
	Window       int           // rolling window size in calls
	MinCalls     int           // observed calls required before the ratio can trip
	CoolDown     time.Duration // open duration before a half-open probe
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 3000 * time.Millisecond
	}
	if o.FailureRatio <= 0 || o.FailureRatio > 1 {
		o.FailureRatio = 0.5
	}
	if o.Window <= 0 {
		o.Window = 10
	}
	if o.MinCalls <= 0 {
		o.MinCalls = 4
	}
	if o.MinCalls > o.Window {
		o.MinCalls = o.Window
	}
	if o.CoolDown <= 0 {
		o.CoolDown = 10000 * time.Millisecond
	}
	return o
}

// Breaker wraps one fallible dependency call path. Instances are independent
// per dependency and per service; no state is shared between them. The
// rolling window is the only mutable shared state and is guarded by mu.
type Breaker struct {
	name string
	opts Options
	log  *zap.Logger

	mu            sync.Mutex
	st            state
	window        []bool // ring of outcomes, true = failure
	idx           int
	filled        int
	fails         int
	nextTryAt     time.Time
	probeInFlight bool
}

func New(name string, opts Options, log *zap.Logger) *Breaker {
	o := opts.withDefaults()
	b := &Breaker{
		name:   name,
		opts:   o,
		log:    log,
		window: make([]bool, o.Window),
	}
	metrics.BreakerState.WithLabelValues(name).Set(0)
	return b
}

// Do runs fn under the breaker. It never retries; a timeout abandons the
// logical wait but does not stop the underlying call.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !b.tryAcquire() {
		return ErrOpen
	}

	err := b.run(ctx, fn)
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

func (b *Breaker) run(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(cctx) }()

	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		return cctx.Err()
	}
}

func (b *Breaker) tryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case stClosed:
		return true
	case stOpen:
		if time.Now().After(b.nextTryAt) && !b.probeInFlight {
			b.transition(stHalfOpen)
			b.probeInFlight = true
			return true
		}
		return false
	case stHalfOpen:
		if !b.probeInFlight {
			b.probeInFlight = true
			return true
		}
		return false
	default:
		return true
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.st == stHalfOpen {
		b.probeInFlight = false
		b.reset()
		b.transition(stClosed)
		return
	}
	b.record(false)
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.st == stHalfOpen {
		b.probeInFlight = false
		b.nextTryAt = time.Now().Add(b.opts.CoolDown)
		b.transition(stOpen)
		return
	}
	if b.st == stOpen {
		return
	}

	b.record(true)
	if b.filled >= b.opts.MinCalls &&
		float64(b.fails)/float64(b.filled) >= b.opts.FailureRatio {
		b.nextTryAt = time.Now().Add(b.opts.CoolDown)
		b.transition(stOpen)
	}
}

// record pushes one outcome into the ring, evicting the oldest once full.
func (b *Breaker) record(failed bool) {
	if b.filled == len(b.window) {
		if b.window[b.idx] {
			b.fails--
		}
	} else {
		b.filled++
	}
	b.window[b.idx] = failed
	if failed {
		b.fails++
	}
	b.idx = (b.idx + 1) % len(b.window)
}

func (b *Breaker) reset() {
	for i := range b.window {
		b.window[i] = false
	}
	b.idx, b.filled, b.fails = 0, 0, 0
}

func (b *Breaker) transition(to state) {
	from := b.st
	b.st = to
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(to))
	if b.log != nil {
		b.log.Warn("breaker state change",
			zap.String("breaker", b.name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
}
