package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/storyduet/storyduet-go/internal/constants"
	"github.com/storyduet/storyduet-go/internal/domain"
	"github.com/storyduet/storyduet-go/internal/prompt"
	"github.com/storyduet/storyduet-go/internal/util"
	apperrors "github.com/storyduet/storyduet-go/pkg/errors"
	"go.uber.org/zap"
)

// StoryGenerator implements the content-generator and analysis-generator
// boundaries on top of the model manager.
type StoryGenerator struct {
	modelManager *ModelManager
	logger       *zap.Logger
}

func NewStoryGenerator(modelManager *ModelManager, logger *zap.Logger) *StoryGenerator {
	return &StoryGenerator{
		modelManager: modelManager,
		logger:       logger,
	}
}

// GenerateLine produces the next story line for the request. Errors carry the
// retry class assigned by the model manager.
func (sg *StoryGenerator) GenerateLine(ctx context.Context, req domain.GenerationRequest) (string, error) {
	promptText := prompt.BuildTurnPrompt(req)

	var response struct {
		Line string `json:"line"`
	}

	metadata, err := sg.modelManager.GenerateJSON(ctx, promptText, PresetCreative, &response, nil)
	if err != nil {
		return "", err
	}

	line := strings.TrimSpace(response.Line)
	if line == "" {
		return "", apperrors.NewGenerationError("generator returned an empty line", "turn", nil)
	}

	sg.logger.Debug("Story line generated",
		zap.String("provider", metadata.Provider),
		zap.Bool("opening", req.Opening),
		zap.Int("words", util.WordCount(line)),
	)

	return line, nil
}

// Title derives a short story title from the full transcript.
func (sg *StoryGenerator) Title(ctx context.Context, transcript string) (string, error) {
	var response struct {
		Title string `json:"title"`
	}
	if _, err := sg.modelManager.GenerateJSON(ctx, prompt.BuildTitlePrompt(transcript), PresetBalanced, &response, capTokens(128)); err != nil {
		return "", err
	}

	title := strings.TrimSpace(response.Title)
	if title == "" {
		return "", apperrors.NewGenerationError("empty title", "title", nil)
	}
	return title, nil
}

// Quote selects the banner quote from the full transcript.
func (sg *StoryGenerator) Quote(ctx context.Context, transcript string) (string, error) {
	var response struct {
		Quote string `json:"quote"`
	}
	if _, err := sg.modelManager.GenerateJSON(ctx, prompt.BuildQuotePrompt(transcript), PresetBalanced, &response, capTokens(128)); err != nil {
		return "", err
	}

	quote := strings.TrimSpace(response.Quote)
	if quote == "" {
		return "", apperrors.NewGenerationError("empty quote", "quote", nil)
	}
	return quote, nil
}

// Mood classifies the user-only text against the fixed emotion vocabulary.
func (sg *StoryGenerator) Mood(ctx context.Context, userText string) (domain.Mood, error) {
	var response struct {
		Emotion    string  `json:"emotion"`
		Confidence float64 `json:"confidence"`
	}
	if _, err := sg.modelManager.GenerateJSON(ctx, prompt.BuildMoodPrompt(userText), PresetPrecise, &response, capTokens(128)); err != nil {
		return domain.Mood{}, err
	}

	emotion := domain.Emotion(util.TitleCaseWord(response.Emotion))
	if !domain.IsValidEmotion(emotion) {
		return domain.Mood{}, apperrors.NewGenerationError(
			fmt.Sprintf("emotion %q outside vocabulary", response.Emotion), "mood", nil)
	}

	confidence := response.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return domain.Mood{Primary: emotion, Confidence: confidence}, nil
}

// StyleMatch ranks the two catalog personas closest to the user's writing.
func (sg *StoryGenerator) StyleMatch(ctx context.Context, userText, catalog string) (domain.StyleMatch, error) {
	var response struct {
		Primary   string `json:"primary"`
		Secondary string `json:"secondary"`
	}
	if _, err := sg.modelManager.GenerateJSON(ctx, prompt.BuildStyleMatchPrompt(userText, catalog), PresetPrecise, &response, capTokens(128)); err != nil {
		return domain.StyleMatch{}, err
	}

	primary := strings.TrimSpace(response.Primary)
	secondary := strings.TrimSpace(response.Secondary)
	if primary == "" || secondary == "" {
		return domain.StyleMatch{}, apperrors.NewGenerationError("style match incomplete", "style", nil)
	}

	return domain.StyleMatch{Primary: primary, Secondary: secondary}, nil
}

// Keywords extracts 5-7 title-case single words from the user's writing.
// Multi-word entries are reduced to their first word; counts outside the
// band are clamped by truncation, short lists are an error.
func (sg *StoryGenerator) Keywords(ctx context.Context, userText string) ([]string, error) {
	var response struct {
		Keywords []string `json:"keywords"`
	}
	if _, err := sg.modelManager.GenerateJSON(ctx, prompt.BuildKeywordsPrompt(userText), PresetPrecise, &response, capTokens(256)); err != nil {
		return nil, err
	}

	keywords := make([]string, 0, len(response.Keywords))
	for _, raw := range response.Keywords {
		fields := strings.Fields(raw)
		if len(fields) == 0 {
			continue
		}
		word := util.TitleCaseWord(fields[0])
		if word != "" && !util.Contains(keywords, word) {
			keywords = append(keywords, word)
		}
	}

	if len(keywords) < constants.AnalysisConfig.MinKeywords {
		return nil, apperrors.NewGenerationError(
			fmt.Sprintf("too few keywords: %d", len(keywords)), "keywords", nil)
	}
	if len(keywords) > constants.AnalysisConfig.MaxKeywords {
		keywords = keywords[:constants.AnalysisConfig.MaxKeywords]
	}

	return keywords, nil
}

// PolishScript turns the full transcript into one block of prose.
func (sg *StoryGenerator) PolishScript(ctx context.Context, transcript string) (string, error) {
	var response struct {
		Script string `json:"script"`
	}
	if _, err := sg.modelManager.GenerateJSON(ctx, prompt.BuildScriptPrompt(transcript), PresetCreative, &response, nil); err != nil {
		return "", err
	}

	script := strings.TrimSpace(response.Script)
	if script == "" {
		return "", apperrors.NewGenerationError("empty script", "script", nil)
	}
	return script, nil
}

func capTokens(max int) *GenerateOptions {
	return &GenerateOptions{
		Overrides: &ModelConfig{MaxOutputTokens: max},
	}
}
