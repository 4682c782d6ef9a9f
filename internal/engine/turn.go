package engine

import (
	"context"
	"time"

	"github.com/storyduet/storyduet-go/internal/constants"
	"github.com/storyduet/storyduet-go/internal/domain"
	apperrors "github.com/storyduet/storyduet-go/pkg/errors"
	"go.uber.org/zap"
)

// ContentGenerator is the external boundary producing one story line.
type ContentGenerator interface {
	GenerateLine(ctx context.Context, req domain.GenerationRequest) (string, error)
}

// SleepFunc waits for d or returns early with the context error.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// TurnEngine wraps one content-generator call with the bounded retry policy:
// up to 3 attempts, fixed 5s wait on rate limits, exponential backoff on
// transient unavailability, immediate failure for everything else.
type TurnEngine struct {
	generator ContentGenerator
	logger    *zap.Logger
	sleep     SleepFunc
}

func NewTurnEngine(generator ContentGenerator, logger *zap.Logger) *TurnEngine {
	return &TurnEngine{
		generator: generator,
		logger:    logger,
		sleep:     defaultSleep,
	}
}

// WithSleep replaces the delay function. Tests use it to record waits
// instead of sleeping.
func (te *TurnEngine) WithSleep(sleep SleepFunc) *TurnEngine {
	te.sleep = sleep
	return te
}

// TakeTurn produces the next story line or the last observed error once all
// attempts are exhausted.
func (te *TurnEngine) TakeTurn(ctx context.Context, req domain.GenerationRequest) (string, error) {
	maxAttempts := constants.RetryConfig.MaxAttempts

	var lastErr error
	backoff := constants.RetryConfig.UnavailableBase

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		line, err := te.generator.GenerateLine(ctx, req)
		if err == nil {
			if attempt > 1 {
				te.logger.Info("Turn succeeded after retry",
					zap.Int("attempt", attempt),
					zap.Bool("opening", req.Opening),
				)
			}
			return line, nil
		}

		lastErr = err

		switch {
		case apperrors.IsRateLimit(err):
			if attempt == maxAttempts {
				break
			}
			te.logger.Warn("Turn rate limited, waiting before retry",
				zap.Int("attempt", attempt),
				zap.Duration("delay", constants.RetryConfig.RateLimitDelay),
			)
			if sleepErr := te.sleep(ctx, constants.RetryConfig.RateLimitDelay); sleepErr != nil {
				return "", sleepErr
			}

		case apperrors.IsUnavailable(err):
			if attempt == maxAttempts {
				break
			}
			te.logger.Warn("Generator unavailable, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("delay", backoff),
			)
			if sleepErr := te.sleep(ctx, backoff); sleepErr != nil {
				return "", sleepErr
			}
			backoff *= time.Duration(constants.RetryConfig.BackoffMultiplier)

		default:
			// Non-retriable: fail immediately.
			te.logger.Error("Turn failed with non-retriable error",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return "", err
		}
	}

	te.logger.Error("Turn attempts exhausted", zap.Error(lastErr))
	return "", lastErr
}
