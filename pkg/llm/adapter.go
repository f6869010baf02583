package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"repopal/pkg/log"
)

const (
	maxAttempts = 3
	baseDelay   = time.Second
)

// Adapter routes completion calls to a primary provider, retrying on rate
// limits with exponential backoff and switching to an operator-provisioned
// fallback once retries are exhausted. Callers never learn which provider
// answered.
type Adapter struct {
	logger   *log.Logger
	primary  Provider
	fallback Provider
	sleep    func(time.Duration)
}

// NewAdapter creates an adapter. fallback may be nil.
func NewAdapter(logger *log.Logger, primary, fallback Provider) *Adapter {
	return &Adapter{
		logger:   logger,
		primary:  primary,
		fallback: fallback,
		sleep:    time.Sleep,
	}
}

// Complete generates text with the shared retry and fallback policy.
// Credential failures are never retried: a bad key cannot succeed on the
// next attempt and retrying it burns quota.
func (a *Adapter) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		out, err := a.primary.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrCredential) {
			return "", err
		}
		if !errors.Is(err, ErrRateLimited) {
			return "", fmt.Errorf("provider %s: %w", a.primary.Name(), err)
		}

		lastErr = err
		delay := baseDelay << attempt
		a.logger.Warning("Provider %s rate limited (attempt %d/%d), backing off %s", a.primary.Name(), attempt+1, maxAttempts, delay)
		a.sleep(delay)
	}

	if a.fallback == nil {
		return "", fmt.Errorf("provider %s exhausted retries: %w", a.primary.Name(), lastErr)
	}

	a.logger.Step("Switching to fallback provider %s", a.fallback.Name())
	out, err := a.fallback.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("fallback provider %s: %w", a.fallback.Name(), err)
	}
	return out, nil
}
