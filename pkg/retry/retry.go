package retry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/amosWeiskopf/docsmith/internal/logging"
	"github.com/amosWeiskopf/docsmith/internal/models"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 60 * time.Second
)

// Action is the decision taken after one attempt.
type Action int

const (
	Success Action = iota
	RetryAfter
	GiveUp
)

func (a Action) String() string {
	switch a {
	case Success:
		return "success"
	case RetryAfter:
		return "retry"
	default:
		return "give-up"
	}
}

// Decision is the outcome of Policy.Decide.
type Decision struct {
	Action Action
	Delay  time.Duration
	Reason string
}

// Policy is a bounded exponential backoff: after attempt n fails with a
// retryable error the next attempt starts InitialDelay * 2^(n-1) later.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPolicy returns 3 retries starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

// Retryable reports whether err is a transient failure: transport and timeout
// errors, HTTP 429 and HTTP 5xx. Anything classified as content rejection, policy
// denial or invalid input, and context cancellation, is final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) && !isNetTimeout(err) {
		return false
	}
	var statusErr *models.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	switch models.KindOf(err) {
	case models.KindContentRejected, models.KindPolicyDenied, models.KindInvalidInput:
		return false
	}
	return true
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Delay returns the wait before the attempt that follows attempt n (1-indexed).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.InitialDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Decide classifies the result of attempt n (1-indexed).
func (p Policy) Decide(n int, err error) Decision {
	if err == nil {
		return Decision{Action: Success}
	}
	if !Retryable(err) {
		return Decision{Action: GiveUp, Reason: err.Error()}
	}
	if n > p.MaxRetries {
		return Decision{Action: GiveUp, Reason: "retries exhausted: " + err.Error()}
	}
	return Decision{Action: RetryAfter, Delay: p.Delay(n), Reason: err.Error()}
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = DefaultMaxDelay
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Do runs op until it succeeds, fails permanently, exhausts MaxRetries or ctx
// ends. op receives the 1-indexed attempt number. The last error is returned
// unwrapped; transient errors that exhausted the budget are wrapped as
// TransientFetch failures.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, op func(attempt int) error) error {
	logger = logging.OrDiscard(logger)
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(maxRetries)), ctx)

	attempt := 0
	var lastErr error
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op(attempt)
		lastErr = err
		switch d := p.Decide(attempt, err); d.Action {
		case Success:
			return nil
		case GiveUp:
			return backoff.Permanent(err)
		default:
			return err
		}
	}, b, func(err error, wait time.Duration) {
		logger.Warn("attempt failed, retrying", "attempt", attempt, "max_attempts", maxRetries+1, "wait", wait, "error", err)
	})
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && lastErr != nil && Retryable(lastErr) {
		return ctxErr
	}
	if Retryable(err) {
		logger.Error("all attempts failed", "attempts", attempt, "error", err)
		return models.NewCrawlError(models.KindTransientFetch, "", "retries exhausted", err)
	}
	return err
}
