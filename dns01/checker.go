package dns01

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ValidationReason says why a propagation check failed.
type ValidationReason string

const (
	NotFound ValidationReason = "no TXT record found"
	Mismatch ValidationReason = "no TXT value matches"
)

// DNSValidationError is returned when a provisioned record is not visible
// with the expected value. Re-running after a delay may succeed.
type DNSValidationError struct {
	Name     string
	Expected string
	Reason   ValidationReason
	// The values that were returned, if any.
	Values []string
}

func (e *DNSValidationError) Error() string {
	if e.Reason == NotFound {
		return fmt.Sprintf("%s at %q", e.Reason, e.Name)
	}
	return fmt.Sprintf("%s at %q: expected %q, got %q", e.Reason, e.Name, e.Expected, e.Values)
}

// Checker confirms challenge records are visible before their challenge is
// answered.
type Checker struct {
	resolver Resolver
	log      *zap.Logger
	// Attempts is the number of queries made before giving up. Values below
	// 1 mean a single query.
	Attempts int
	// Interval is the initial wait between attempts. It grows exponentially.
	Interval time.Duration
}

// NewChecker returns a Checker that makes a single query through resolver.
func NewChecker(resolver Resolver, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{
		resolver: resolver,
		log:      log,
		Attempts: 1,
		Interval: 5 * time.Second,
	}
}

// check performs one query for rec.
func (c *Checker) check(ctx context.Context, rec ChallengeRecord) error {
	values, err := c.resolver.LookupTXT(ctx, rec.Name)
	if err != nil {
		return fmt.Errorf("querying TXT %q: %w", rec.Name, err)
	}
	if len(values) == 0 {
		return &DNSValidationError{Name: rec.Name, Expected: rec.Value, Reason: NotFound}
	}
	if !slices.Contains(values, rec.Value) {
		return &DNSValidationError{Name: rec.Name, Expected: rec.Value, Reason: Mismatch, Values: values}
	}
	return nil
}

// Verify queries the resolver for rec until the expected value is seen or the
// attempts run out. The last failure is returned.
func (c *Checker) Verify(ctx context.Context, rec ChallengeRecord) error {
	attempts := c.Attempts
	if attempts < 1 {
		attempts = 1
	}
	if attempts == 1 {
		return c.check(ctx, rec)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.Interval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := c.check(ctx, rec)
		if err != nil {
			c.log.Debug("challenge record not visible yet",
				zap.String("record", rec.Name),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return err
	}, policy)
}
