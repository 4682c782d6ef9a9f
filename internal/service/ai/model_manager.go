package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/storyduet/storyduet-go/internal/constants"
	"github.com/storyduet/storyduet-go/internal/util"
	apperrors "github.com/storyduet/storyduet-go/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// ModelManager owns the model providers and the circuit breaker in front of
// them. Failures surface as typed errors so callers can apply the retry
// policy per class.
type ModelManager struct {
	gemini         *GeminiProvider
	openaiFallback *OpenAIProvider
	logger         *zap.Logger
	enableFallback bool
	circuitBreaker *util.CircuitBreaker
}

type ModelManagerConfig struct {
	GeminiAPIKey       string
	OpenAIAPIKey       string
	DefaultGeminiModel string
	DefaultOpenAIModel string
	EnableFallback     bool
}

func NewModelManager(ctx context.Context, cfg ModelManagerConfig, logger *zap.Logger) (*ModelManager, error) {
	geminiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	defaultGemini := cfg.DefaultGeminiModel
	if defaultGemini == "" {
		defaultGemini = "gemini-2.5-flash"
	}

	defaultOpenAI := cfg.DefaultOpenAIModel
	if defaultOpenAI == "" {
		defaultOpenAI = "gpt-5-mini"
	}

	mm := &ModelManager{
		gemini:         NewGeminiProvider(geminiClient, defaultGemini, logger),
		logger:         logger,
		enableFallback: cfg.EnableFallback && cfg.OpenAIAPIKey != "",
	}

	if cfg.OpenAIAPIKey != "" {
		mm.openaiFallback = NewOpenAIProvider(cfg.OpenAIAPIKey, defaultOpenAI, logger)
		logger.Info("OpenAI fallback enabled", zap.String("model", defaultOpenAI))
	} else {
		logger.Info("OpenAI fallback disabled (no API key)")
	}

	mm.circuitBreaker = util.NewCircuitBreaker(
		constants.CircuitBreakerConfig.FailureThreshold,
		constants.CircuitBreakerConfig.ResetTimeout,
		constants.CircuitBreakerConfig.HealthCheckInterval,
		mm.healthCheckPing,
		logger,
	)

	return mm, nil
}

// GenerateJSON generates with the primary provider, falls back when enabled,
// and unmarshals the cleaned response into dest.
func (mm *ModelManager) GenerateJSON(ctx context.Context, prompt string, preset ModelPreset, dest any, opts *GenerateOptions) (*GenerateMetadata, error) {
	if !mm.circuitBreaker.CanExecute() {
		status := mm.circuitBreaker.GetStatus()
		nextRetry := "unknown"
		if status.NextRetryTime != nil {
			nextRetry = status.NextRetryTime.Format("15:04:05")
		}

		mm.logger.Error("AI service unavailable (Circuit OPEN)",
			zap.String("state", status.State.String()),
			zap.Int("failure_count", status.FailureCount),
			zap.String("next_retry", nextRetry),
		)

		return nil, apperrors.NewUnavailableError(
			fmt.Sprintf("generation service temporarily unavailable, next retry at %s", nextRetry), nil)
	}

	var text string
	var metadata *GenerateMetadata

	if opts == nil {
		opts = &GenerateOptions{}
	}
	opts.JSONMode = true

	primaryResult, primaryErr := mm.gemini.Generate(ctx, prompt, preset, opts)
	if primaryErr == nil {
		mm.circuitBreaker.RecordSuccess()
		text = primaryResult.Text
		metadata = &GenerateMetadata{
			Provider:     mm.gemini.Name(),
			Model:        primaryResult.Model,
			UsedFallback: false,
		}
	} else {
		if mm.enableFallback && mm.openaiFallback != nil {
			fallbackResult, fallbackErr := mm.openaiFallback.Generate(ctx, prompt, preset, opts)
			if fallbackErr == nil {
				mm.circuitBreaker.RecordSuccess()
				text = fallbackResult.Text
				metadata = &GenerateMetadata{
					Provider:     mm.openaiFallback.Name(),
					Model:        fallbackResult.Model,
					UsedFallback: true,
				}
			} else {
				mm.recordProviderFailure(primaryErr, fallbackErr)
				return nil, mm.classify(fallbackErr)
			}
		} else {
			mm.recordProviderFailure(primaryErr, nil)
			return nil, mm.classify(primaryErr)
		}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, apperrors.NewGenerationError(
			fmt.Sprintf("%s API returned empty response", metadata.Provider), "generate", nil)
	}

	cleaned := stripCodeFence(trimmed)

	if err := json.Unmarshal([]byte(cleaned), dest); err != nil {
		previewLen := util.Min(len(cleaned), 200)
		mm.logger.Error("Failed to unmarshal JSON response",
			zap.String("provider", metadata.Provider),
			zap.Error(err),
			zap.String("response_preview", cleaned[:previewLen]),
		)
		return nil, apperrors.NewGenerationError(
			fmt.Sprintf("invalid JSON from %s", metadata.Provider), "generate", err)
	}

	return metadata, nil
}

func (mm *ModelManager) recordProviderFailure(primaryErr, fallbackErr error) {
	if !isServiceFailure(primaryErr) && !isServiceFailure(fallbackErr) {
		return
	}
	timeout := constants.CircuitBreakerConfig.ResetTimeout
	if isRateLimitSignal(primaryErr) || isRateLimitSignal(fallbackErr) {
		timeout = constants.CircuitBreakerConfig.RateLimitTimeout
	}
	mm.circuitBreaker.RecordFailure(timeout)
}

// classify maps a raw provider error onto the retry taxonomy.
func (mm *ModelManager) classify(err error) error {
	switch {
	case isRateLimitSignal(err):
		return apperrors.NewRateLimitError("generation provider rate limited", err)
	case isServiceFailure(err):
		return apperrors.NewUnavailableError("generation provider temporarily unavailable", err)
	default:
		return apperrors.NewGenerationError("generation failed", "generate", err)
	}
}

func (mm *ModelManager) healthCheckPing() bool {
	mm.logger.Info("Health Check: Testing AI services...")

	ctx, cancel := context.WithTimeout(context.Background(), constants.CircuitBreakerConfig.HealthCheckTimeout)
	defer cancel()

	geminiOK := mm.gemini.Ping(ctx)
	openaiOK := false

	if mm.enableFallback && mm.openaiFallback != nil {
		openaiOK = mm.openaiFallback.Ping(ctx)
	}

	isHealthy := geminiOK || openaiOK

	mm.logger.Info("Health Check: Result",
		zap.Bool("gemini", geminiOK),
		zap.Bool("openai", openaiOK),
		zap.Bool("healthy", isHealthy),
	)

	return isHealthy
}

func (mm *ModelManager) GetCircuitStatus() util.CircuitBreakerStatus {
	return mm.circuitBreaker.GetStatus()
}

func (mm *ModelManager) ResetCircuit() {
	mm.circuitBreaker.Reset()
}

func stripCodeFence(s string) string {
	cleaned := s
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "```json"))
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "```"))
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, "```"))
	}
	return cleaned
}

var (
	statusCodeRegex = regexp.MustCompile(`\b(5\d{2})\b`)
	geminiCodeRegex = regexp.MustCompile(`"code":(\d{3})`)
	openaiCodeRegex = regexp.MustCompile(`^(\d{3})\s`)
)

func isServiceFailure(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	if strings.Contains(msg, "timeout") || strings.Contains(msg, "ETIMEDOUT") ||
		strings.Contains(msg, "unavailable") || strings.Contains(msg, "UNAVAILABLE") {
		return true
	}

	if isRateLimitSignal(err) {
		return true
	}

	if statusCodeRegex.MatchString(msg) {
		return true
	}

	if matches := geminiCodeRegex.FindStringSubmatch(msg); len(matches) > 1 {
		if code, convErr := strconv.Atoi(matches[1]); convErr == nil {
			return code >= 500 && code < 600
		}
	}

	if matches := openaiCodeRegex.FindStringSubmatch(msg); len(matches) > 1 {
		if code, convErr := strconv.Atoi(matches[1]); convErr == nil {
			return code >= 500 && code < 600
		}
	}

	return false
}

func isRateLimitSignal(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	if strings.Contains(msg, "429") || strings.Contains(msg, "Rate limit") ||
		strings.Contains(msg, "too many requests") || strings.Contains(msg, "quota") {
		return true
	}

	if matches := geminiCodeRegex.FindStringSubmatch(msg); len(matches) > 1 {
		if code, convErr := strconv.Atoi(matches[1]); convErr == nil {
			return code == 429
		}
	}

	if matches := openaiCodeRegex.FindStringSubmatch(msg); len(matches) > 1 {
		if code, convErr := strconv.Atoi(matches[1]); convErr == nil {
			return code == 429
		}
	}

	return false
}
