package canceler

import "time"

type Config struct {
	// Interval of the verification pass
	VerifyInterval time.Duration

	// Max concurrent verifications
	Workers int

	// Max approvals taken per destination per pass
	BatchSize int

	// Timeout on one destination query
	CallTimeout time.Duration

	// Timeout on one cancel submission, confirmation included
	SubmitTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		VerifyInterval: 5 * time.Second,
		Workers:        4,
		BatchSize:      100,
		CallTimeout:    15 * time.Second,
		SubmitTimeout:  2 * time.Minute,
	}
}
