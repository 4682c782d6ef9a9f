package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storyduet/storyduet-go/internal/constants"
	"github.com/storyduet/storyduet-go/internal/domain"
	apperrors "github.com/storyduet/storyduet-go/pkg/errors"
	"go.uber.org/zap"
)

type fakeGenerator struct {
	responses []func() (string, error)
	calls     int
}

func (f *fakeGenerator) GenerateLine(_ context.Context, _ domain.GenerationRequest) (string, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		return "", errors.New("no scripted response")
	}
	return f.responses[idx]()
}

func recordingSleep(delays *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestTakeTurnRetriesRateLimitThenSucceeds(t *testing.T) {
	rateLimited := func() (string, error) {
		return "", apperrors.NewRateLimitError("quota exceeded", nil)
	}
	generator := &fakeGenerator{
		responses: []func() (string, error){
			rateLimited,
			rateLimited,
			func() (string, error) { return "The rain had opinions tonight.", nil },
		},
	}

	var delays []time.Duration
	engine := NewTurnEngine(generator, zap.NewNop()).WithSleep(recordingSleep(&delays))

	line, err := engine.TakeTurn(context.Background(), domain.GenerationRequest{})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if line != "The rain had opinions tonight." {
		t.Fatalf("unexpected line: %q", line)
	}
	if generator.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", generator.calls)
	}
	if len(delays) != 2 {
		t.Fatalf("expected 2 waits, got %d", len(delays))
	}
	for i, d := range delays {
		if d != constants.RetryConfig.RateLimitDelay {
			t.Errorf("wait %d: expected %v, got %v", i, constants.RetryConfig.RateLimitDelay, d)
		}
	}
}

func TestTakeTurnUnavailableBackoffDoubles(t *testing.T) {
	unavailable := func() (string, error) {
		return "", apperrors.NewUnavailableError("upstream timeout", nil)
	}
	generator := &fakeGenerator{
		responses: []func() (string, error){
			unavailable,
			unavailable,
			func() (string, error) { return "ok", nil },
		},
	}

	var delays []time.Duration
	engine := NewTurnEngine(generator, zap.NewNop()).WithSleep(recordingSleep(&delays))

	if _, err := engine.TakeTurn(context.Background(), domain.GenerationRequest{}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	want := []time.Duration{
		constants.RetryConfig.UnavailableBase,
		constants.RetryConfig.UnavailableBase * time.Duration(constants.RetryConfig.BackoffMultiplier),
	}
	if len(delays) != len(want) {
		t.Fatalf("expected %d waits, got %d", len(want), len(delays))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("wait %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}

func TestTakeTurnNonRetriableFailsImmediately(t *testing.T) {
	generator := &fakeGenerator{
		responses: []func() (string, error){
			func() (string, error) {
				return "", apperrors.NewGenerationError("schema violation", "turn", nil)
			},
		},
	}

	var delays []time.Duration
	engine := NewTurnEngine(generator, zap.NewNop()).WithSleep(recordingSleep(&delays))

	_, err := engine.TakeTurn(context.Background(), domain.GenerationRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if generator.calls != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", generator.calls)
	}
	if len(delays) != 0 {
		t.Fatalf("expected no waits, got %d", len(delays))
	}
}

func TestTakeTurnExhaustionReturnsLastError(t *testing.T) {
	generator := &fakeGenerator{
		responses: []func() (string, error){
			func() (string, error) { return "", apperrors.NewRateLimitError("first", nil) },
			func() (string, error) { return "", apperrors.NewRateLimitError("second", nil) },
			func() (string, error) { return "", apperrors.NewRateLimitError("third", nil) },
		},
	}

	var delays []time.Duration
	engine := NewTurnEngine(generator, zap.NewNop()).WithSleep(recordingSleep(&delays))

	_, err := engine.TakeTurn(context.Background(), domain.GenerationRequest{})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	var rle *apperrors.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected rate limit error, got %T", err)
	}
	if rle.Message != "third" {
		t.Fatalf("expected last error to propagate, got %q", rle.Message)
	}
	if generator.calls != constants.RetryConfig.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", constants.RetryConfig.MaxAttempts, generator.calls)
	}
	// No wait after the final attempt.
	if len(delays) != constants.RetryConfig.MaxAttempts-1 {
		t.Fatalf("expected %d waits, got %d", constants.RetryConfig.MaxAttempts-1, len(delays))
	}
}

func TestTakeTurnSleepCancellation(t *testing.T) {
	generator := &fakeGenerator{
		responses: []func() (string, error){
			func() (string, error) { return "", apperrors.NewUnavailableError("blip", nil) },
		},
	}

	engine := NewTurnEngine(generator, zap.NewNop()).WithSleep(
		func(_ context.Context, _ time.Duration) error { return context.Canceled },
	)

	_, err := engine.TakeTurn(context.Background(), domain.GenerationRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if generator.calls != 1 {
		t.Fatalf("expected no further attempts after cancelled wait, got %d", generator.calls)
	}
}
