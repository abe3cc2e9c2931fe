package retry

import (
	"context"
	"math/rand"
	"time"

	"multipost/domain/model"
)

type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	return c
}

// Sleeper waits for d or until ctx is done. Tests swap it for a no-op.
type Sleeper func(ctx context.Context, d time.Duration) error

func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Policy struct {
	config Config
	sleep  Sleeper
}

func NewPolicy(config Config) *Policy {
	return &Policy{config: config.withDefaults(), sleep: ContextSleep}
}

// WithSleeper returns a copy of p using s between attempts.
func (p *Policy) WithSleeper(s Sleeper) *Policy {
	cp := *p
	cp.sleep = s
	return &cp
}

func (p *Policy) MaxAttempts() int { return p.config.MaxAttempts }

// Do runs op until it succeeds, returns a non-transient error, or the attempt cap is
// reached. It returns the number of attempts made.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) (int, error) {
	delay := p.config.InitialDelay
	var err error
	attempt := 0
	for attempt < p.config.MaxAttempts {
		if attempt > 0 {
			if sErr := p.sleep(ctx, applyJitter(delay)); sErr != nil {
				return attempt, err
			}
			delay = min(time.Duration(float64(delay)*p.config.Multiplier), p.config.MaxDelay)
		}
		attempt++
		err = op(ctx, attempt)
		if err == nil || !model.IsRetryable(err) {
			return attempt, err
		}
	}
	return attempt, err
}

func applyJitter(delay time.Duration) time.Duration {
	jitterFactor := 0.9 + rand.Float64()*0.2
	return time.Duration(float64(delay) * jitterFactor)
}
