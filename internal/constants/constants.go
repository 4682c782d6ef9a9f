package constants

import "time"

var RetryConfig = struct {
	MaxAttempts       int
	RateLimitDelay    time.Duration
	UnavailableBase   time.Duration
	BackoffMultiplier int
}{
	MaxAttempts:       3,
	RateLimitDelay:    5 * time.Second,
	UnavailableBase:   1 * time.Second,
	BackoffMultiplier: 2,
}

var CircuitBreakerConfig = struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	RateLimitTimeout    time.Duration
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
}{
	FailureThreshold:    3,
	ResetTimeout:        30 * time.Second,
	RateLimitTimeout:    1 * time.Hour,
	HealthCheckInterval: 10 * time.Minute,
	HealthCheckTimeout:  10 * time.Second,
}

var TurnConfig = struct {
	// Opening lines ignore mirroring and target a fixed short range.
	OpeningMinWords int
	OpeningMaxWords int
	// Mirror tolerance applied to the latest human line, prompt-level only.
	MirrorTolerance float64
	MaxInputLength  int
}{
	OpeningMinWords: 12,
	OpeningMaxWords: 20,
	MirrorTolerance: 0.15,
	MaxInputLength:  1000,
}

var DuologueConfig = struct {
	PacingDelay time.Duration
	MaxTurns    int
}{
	PacingDelay: 4 * time.Second,
	MaxTurns:    24,
}

var AnalysisConfig = struct {
	TitleMaxWords int
	QuoteMinWords int
	QuoteMaxWords int
	MinKeywords   int
	MaxKeywords   int
}{
	TitleMaxWords: 8,
	QuoteMinWords: 10,
	QuoteMaxWords: 20,
	MinKeywords:   5,
	MaxKeywords:   7,
}

var CacheTTL = struct {
	SessionSnapshot time.Duration
	AnalysisRecord  time.Duration
}{
	SessionSnapshot: 2 * time.Hour,
	AnalysisRecord:  24 * time.Hour,
}

var RedisConfig = struct {
	ReadyTimeout time.Duration
}{
	ReadyTimeout: 5 * time.Second,
}

var WebSocketConfig = struct {
	WriteTimeout  time.Duration
	SendQueueSize int
}{
	WriteTimeout:  5 * time.Second,
	SendQueueSize: 32,
}
