package executor

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/matzehuels/metagate/pkg/errors"
	"github.com/matzehuels/metagate/pkg/observability"
)

// Default policy values.
const (
	DefaultMaxRetries        = 3
	DefaultRetryAfter        = 5 * time.Second
	DefaultPaddingDelay      = 250 * time.Millisecond
	DefaultRandomDelayMax    = 500 * time.Millisecond
	DefaultBackoffMultiplier = time.Second
)

// Options configures an [Executor]. The zero value performs no retries and
// applies no limits.
type Options struct {
	// MaxRetries is the number of retries after the first attempt for 429
	// responses.
	MaxRetries int

	// DefaultRetryAfter is used when a 429 carries no usable Retry-After.
	DefaultRetryAfter time.Duration

	// MinimumDelay is the lower bound of the Retry-After part of a wait.
	MinimumDelay time.Duration

	// PaddingDelay is added to every retry wait.
	PaddingDelay time.Duration

	// RandomDelayMax bounds the uniform jitter added to every retry wait.
	RandomDelayMax time.Duration

	// BackoffMultiplier is multiplied by the number of calls currently
	// retrying and added to every retry wait.
	BackoffMultiplier time.Duration

	// MaxParallel caps concurrently executing work. Zero means unlimited.
	MaxParallel int

	// OccasionalDelay enables periodic pacing cooldowns.
	OccasionalDelay *OccasionalDelay

	// RateLimit is a steady request rate in requests per second applied just
	// before work runs. Zero disables it.
	RateLimit float64

	// RateBurst is the token bucket size for RateLimit. Defaults to 1.
	RateBurst int

	// Logger receives backoff diagnostics. Defaults to log.Default().
	Logger *log.Logger

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// OccasionalDelay makes every Every-th request wait for a shared cooldown of
// Duration. The counter restarts when no request completed within
// ResetAfterIdle.
type OccasionalDelay struct {
	Every          int
	Duration       time.Duration
	ResetAfterIdle time.Duration
}

// DefaultOptions returns the policy used for domains without overrides.
func DefaultOptions() Options {
	return Options{
		MaxRetries:        DefaultMaxRetries,
		DefaultRetryAfter: DefaultRetryAfter,
		PaddingDelay:      DefaultPaddingDelay,
		RandomDelayMax:    DefaultRandomDelayMax,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// State is a snapshot of an executor's bookkeeping.
type State struct {
	InFlight       int
	Retrying       int
	NextRetry      time.Time
	LastRequestEnd time.Time
	Cooldown       bool
}

type call struct {
	done chan struct{}
}

// Executor runs work for a single upstream domain. It is safe for
// concurrent use.
type Executor struct {
	domain  string
	opts    Options
	logger  *log.Logger
	now     func() time.Time
	limiter *rate.Limiter

	mu         sync.Mutex
	inFlight   map[*call]struct{}
	settled    chan struct{} // closed and replaced whenever a call settles
	retrying   int
	nextRetry  time.Time
	lastEnd    time.Time
	occasional int
	cooldown   chan struct{} // non-nil while a cooldown is active
}

// New creates an executor for domain.
func New(domain string, opts Options) *Executor {
	e := &Executor{
		domain:   domain,
		opts:     opts,
		logger:   opts.Logger,
		now:      opts.Now,
		inFlight: make(map[*call]struct{}),
		settled:  make(chan struct{}),
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if opts.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(opts.RateBurst, 1))
	}
	return e
}

// Domain returns the domain key this executor serves.
func (e *Executor) Domain() string { return e.domain }

// State returns a snapshot of the executor's bookkeeping.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		InFlight:       len(e.inFlight),
		Retrying:       e.retrying,
		NextRetry:      e.nextRetry,
		LastRequestEnd: e.lastEnd,
		Cooldown:       e.cooldown != nil,
	}
}

// Do runs work, retrying 429 responses according to the executor's policy.
// Failures other than a 429 are returned as-is without retry. When retries
// are exhausted the last 429 error is returned.
func (e *Executor) Do(ctx context.Context, work func(context.Context) error) error {
	remaining := e.opts.MaxRetries
	retrying := false
	defer func() {
		if retrying {
			e.mu.Lock()
			e.retrying--
			e.mu.Unlock()
		}
	}()

	var delay time.Duration
	for {
		if err := e.waitRetryWindow(ctx, delay); err != nil {
			return err
		}
		if err := e.pace(ctx); err != nil {
			return err
		}
		c, err := e.acquire(ctx)
		if err != nil {
			return err
		}
		err = e.execute(ctx, c, work)
		if err == nil || !errors.IsRateLimited(err) {
			return err
		}
		if remaining <= 0 {
			e.logger.Debug("rate limited, retries exhausted", "domain", e.domain)
			return err
		}
		remaining--
		delay = e.backoff(err, !retrying)
		retrying = true

		e.logger.Debug("rate limited, backing off", "domain", e.domain, "wait", delay, "remaining", remaining)
		observability.Executor().OnRateLimited(ctx, e.domain, delay, remaining)
	}
}

// Call runs fn through e and returns its result.
func Call[T any](ctx context.Context, e *Executor, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// backoff records a 429 and returns how long this call waits before its
// next attempt.
func (e *Executor) backoff(err error, first bool) time.Duration {
	now := e.now()
	retryAfter := e.opts.DefaultRetryAfter
	if ue, ok := errors.AsUpstream(err); ok {
		if d, ok := ParseRetryAfter(ue.RetryAfter(), now); ok {
			retryAfter = d
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if first {
		e.retrying++
	}
	if t := now.Add(retryAfter); t.After(e.nextRetry) {
		e.nextRetry = t
	}
	wait := max(retryAfter, e.opts.MinimumDelay) + e.opts.PaddingDelay
	if e.opts.RandomDelayMax > 0 {
		wait += rand.N(e.opts.RandomDelayMax)
	}
	wait += time.Duration(e.retrying) * e.opts.BackoffMultiplier
	return wait
}

// waitRetryWindow sleeps for delay or until the domain's next retry time,
// whichever is later.
func (e *Executor) waitRetryWindow(ctx context.Context, delay time.Duration) error {
	e.mu.Lock()
	next := e.nextRetry
	e.mu.Unlock()
	if !next.IsZero() {
		delay = max(delay, next.Sub(e.now()))
	}
	return sleep(ctx, delay)
}

// pace applies the occasional delay policy.
func (e *Executor) pace(ctx context.Context) error {
	od := e.opts.OccasionalDelay
	if od == nil || od.Every <= 0 || od.Duration <= 0 {
		return nil
	}

	e.mu.Lock()
	if e.cooldown == nil {
		if od.ResetAfterIdle > 0 && !e.lastEnd.IsZero() && e.now().Sub(e.lastEnd) >= od.ResetAfterIdle {
			e.occasional = 0
		} else {
			e.occasional++
			if e.occasional >= od.Every {
				e.occasional = 0
				ch := make(chan struct{})
				e.cooldown = ch
				time.AfterFunc(od.Duration, func() {
					e.mu.Lock()
					e.cooldown = nil
					e.mu.Unlock()
					close(ch)
				})
				e.logger.Debug("pacing cooldown", "domain", e.domain, "duration", od.Duration)
				observability.Executor().OnCooldown(ctx, e.domain, od.Duration)
			}
		}
	}
	ch := e.cooldown
	e.mu.Unlock()

	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return errors.Cancelled(ctx.Err())
	}
}

// acquire blocks until the drain barrier and the parallel cap allow a send,
// then registers the call as in flight. Both conditions are re-checked after
// every wait.
func (e *Executor) acquire(ctx context.Context) (*call, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Cancelled(err)
		}

		e.mu.Lock()
		if e.retrying > 0 && len(e.inFlight) > 0 {
			pending := make([]chan struct{}, 0, len(e.inFlight))
			for c := range e.inFlight {
				pending = append(pending, c.done)
			}
			e.mu.Unlock()
			for _, done := range pending {
				select {
				case <-done:
				case <-ctx.Done():
					return nil, errors.Cancelled(ctx.Err())
				}
			}
			continue
		}
		if e.opts.MaxParallel > 0 && len(e.inFlight) >= e.opts.MaxParallel {
			settled := e.settled
			e.mu.Unlock()
			select {
			case <-settled:
			case <-ctx.Done():
				return nil, errors.Cancelled(ctx.Err())
			}
			continue
		}
		c := &call{done: make(chan struct{})}
		e.inFlight[c] = struct{}{}
		e.mu.Unlock()
		return c, nil
	}
}

func (e *Executor) release(c *call) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, c)
	e.lastEnd = e.now()
	close(c.done)
	close(e.settled)
	e.settled = make(chan struct{})
}

func (e *Executor) execute(ctx context.Context, c *call, work func(context.Context) error) error {
	defer e.release(c)
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return errors.Cancelled(ctx.Err())
			}
			return errors.Wrap(errors.ErrCodeRateLimited, err, "rate limit wait for %s", e.domain)
		}
	}
	return work(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return errors.Cancelled(err)
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return errors.Cancelled(ctx.Err())
	}
}
