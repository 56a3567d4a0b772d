package completion

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// ErrCircuitOpen is returned without calling the model while the breaker is
// open after repeated failures.
var ErrCircuitOpen = errors.New("completion: circuit breaker open")

const (
	maxAttempts    = 3
	backoffBase    = 1 * time.Second
	backoffCap     = 10 * time.Second
	breakerTrips   = 5
	breakerCooloff = 60 * time.Second
)

// Service wraps a Caller with per-call timeouts, bounded retries with jittered
// exponential backoff, and a circuit breaker shared by all callers.
type Service struct {
	caller Caller
	log    zerolog.Logger

	// sleep and now are swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

// NewService creates a Service around the given raw caller.
func NewService(caller Caller, log zerolog.Logger) *Service {
	return &Service{
		caller: caller,
		log:    log,
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

// Generate runs one completion with the full resilience policy applied.
// Retries happen only for transient failures: rate limits, upstream 5xx and
// timeouts. Parse-level failures never reach this layer.
func (s *Service) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := s.allow(); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTextTimeout
		if len(req.Images) > 0 {
			timeout = DefaultVisionTimeout
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := s.caller.Complete(callCtx, req)
		cancel()

		if err == nil {
			s.recordSuccess()
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			s.recordSuccess() // the model answered; the breaker tracks availability, not content
			return nil, err
		}
		s.recordFailure()

		if attempt == maxAttempts {
			break
		}
		delay := backoffDelay(attempt)
		s.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).
			Msg("completion call failed, retrying")
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("Generate: %d attempts exhausted: %w", maxAttempts, lastErr)
}

// IsRetryable reports whether the error is transient. Rate limiting and
// upstream 5xx responses qualify, as do deadline and network timeouts.
func IsRetryable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code == 408 || apiErr.Code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// allow admits the call unless the breaker is open. After the cool-off one
// probe call is let through; its outcome decides whether the breaker closes.
func (s *Service) allow() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failures < breakerTrips {
		return nil
	}
	if s.now().Sub(s.openedAt) < breakerCooloff {
		return ErrCircuitOpen
	}
	if s.probing {
		return ErrCircuitOpen
	}
	s.probing = true
	return nil
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures >= breakerTrips {
		s.log.Info().Msg("completion circuit breaker closed")
	}
	s.failures = 0
	s.probing = false
}

func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	s.probing = false
	if s.failures >= breakerTrips {
		s.openedAt = s.now()
		s.log.Error().Int("failures", s.failures).Msg("completion circuit breaker open")
	}
}

// backoffDelay computes full-jitter exponential backoff for the given attempt
// (1-based): a uniform draw from [0, min(cap, base*2^(attempt-1))].
func backoffDelay(attempt int) time.Duration {
	ceiling := backoffBase << (attempt - 1)
	if ceiling > backoffCap {
		ceiling = backoffCap
	}
	return time.Duration(rand.Int63n(int64(ceiling)) + 1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
