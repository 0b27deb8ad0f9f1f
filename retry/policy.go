package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes an exponential backoff.
// MaxElapsedTime of zero retries forever.
type Policy struct {
	InitialInterval     time.Duration `mapstructure:"initial_interval"`
	MaxInterval         time.Duration `mapstructure:"max_interval"`
	Multiplier          float64       `mapstructure:"multiplier"`
	RandomizationFactor float64       `mapstructure:"randomization_factor"`
	MaxElapsedTime      time.Duration `mapstructure:"max_elapsed_time"`
}

func DefaultPolicy() Policy {
	return Policy{
		InitialInterval:     2 * time.Second,
		MaxInterval:         2 * time.Minute,
		Multiplier:          2,
		RandomizationFactor: 0.2,
		MaxElapsedTime:      24 * time.Hour,
	}
}

// NewBackOff returns a fresh backoff that measures elapsed time on clock.
func (p Policy) NewBackOff(clock Clock) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialInterval,
		RandomizationFactor: p.RandomizationFactor,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxInterval,
		MaxElapsedTime:      p.MaxElapsedTime,
		Stop:                backoff.Stop,
		Clock:               clock,
	}
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Reset()
	return b
}
