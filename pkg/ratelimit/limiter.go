// Package ratelimit enforces a minimum interval between requests to the same domain.
package ratelimit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/amosWeiskopf/docsmith/internal/logging"
)

// DomainLimiter keeps one gate per domain. Callers to the same domain are
// serialised through that domain's lock; different domains never block each other.
type DomainLimiter struct {
	delay  time.Duration
	global *rate.Limiter
	logger *slog.Logger

	mu      sync.Mutex
	domains map[string]*domainState
}

type domainState struct {
	mu          sync.Mutex
	last        time.Time
	minInterval time.Duration
	adjusted    bool
}

// New returns a limiter enforcing delay between requests to one domain. A
// positive requestsPerSecond additionally caps the request rate across all domains.
func New(delay time.Duration, requestsPerSecond float64, logger *slog.Logger) *DomainLimiter {
	l := &DomainLimiter{
		delay:   delay,
		logger:  logging.OrDiscard(logger),
		domains: make(map[string]*domainState),
	}
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		l.global = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return l
}

func (l *DomainLimiter) state(domain string) *domainState {
	domain = strings.ToLower(domain)
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.domains[domain]
	if !ok {
		st = &domainState{minInterval: l.delay}
		l.domains[domain] = st
	}
	return st
}

// SetCrawlDelay raises the domain's interval to crawlDelay when it exceeds the
// configured delay. Only the first call for a domain has an effect.
func (l *DomainLimiter) SetCrawlDelay(domain string, crawlDelay time.Duration) {
	st := l.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.adjusted {
		return
	}
	st.adjusted = true
	st.minInterval = max(l.delay, crawlDelay)
	if st.minInterval > l.delay {
		l.logger.Debug("using robots crawl-delay", "domain", domain, "interval", st.minInterval)
	}
}

// MinInterval returns the interval currently enforced for domain.
func (l *DomainLimiter) MinInterval(domain string) time.Duration {
	st := l.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.minInterval
}

// Wait blocks until the domain's minimum interval has elapsed since its last
// request and then records the new request time. The check and the record happen
// under the domain lock. It returns early only when ctx is done.
func (l *DomainLimiter) Wait(ctx context.Context, domain string) error {
	st := l.state(domain)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.last.IsZero() {
		if rest := time.Until(st.last.Add(st.minInterval)); rest > 0 {
			l.logger.Debug("rate limiting", "domain", domain, "wait", rest)
			timer := time.NewTimer(rest)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	if l.global != nil {
		if err := l.global.Wait(ctx); err != nil {
			return err
		}
	}

	st.last = time.Now()
	return nil
}
