package prompt

import (
	"fmt"
	"strings"

	"github.com/storyduet/storyduet-go/internal/constants"
	"github.com/storyduet/storyduet-go/internal/domain"
)

// BuildTitlePrompt asks for a story title under the configured word cap.
func BuildTitlePrompt(transcript string) string {
	return fmt.Sprintf(`Read this collaboratively written story and give it a title of fewer than %d words.

Story:
%s

Respond with JSON only: {"title": "<the title>"}`,
		constants.AnalysisConfig.TitleMaxWords, transcript)
}

// BuildQuotePrompt asks for one banner quote lifted from the story.
func BuildQuotePrompt(transcript string) string {
	return fmt.Sprintf(`Select or lightly adapt one quote of %d to %d words from this story that best captures its spirit.

Story:
%s

Respond with JSON only: {"quote": "<the quote>"}`,
		constants.AnalysisConfig.QuoteMinWords, constants.AnalysisConfig.QuoteMaxWords, transcript)
}

// BuildMoodPrompt classifies the human writer's lines against the fixed
// emotion vocabulary.
func BuildMoodPrompt(userText string) string {
	emotions := make([]string, len(domain.AllEmotions))
	for i, e := range domain.AllEmotions {
		emotions[i] = string(e)
	}

	return fmt.Sprintf(`These lines were written by one human author during a story session:

%s

Pick the single emotion that best describes their writing from exactly this list: %s.
Give a confidence between 0 and 1.

Respond with JSON only: {"emotion": "<one of the list>", "confidence": <number>}`,
		userText, strings.Join(emotions, ", "))
}

// BuildStyleMatchPrompt ranks the two catalog personas closest to the
// human writer's style.
func BuildStyleMatchPrompt(userText, catalog string) string {
	return fmt.Sprintf(`These lines were written by one human author:

%s

Here is a catalog of literary styles:
%s
Name the two catalog entries whose style the author's writing most resembles, ranked winner then runner-up. Use the names exactly as they appear in the catalog.

Respond with JSON only: {"primary": "<name>", "secondary": "<name>"}`,
		userText, catalog)
}

// BuildKeywordsPrompt extracts the signature single-word keywords.
func BuildKeywordsPrompt(userText string) string {
	return fmt.Sprintf(`These lines were written by one human author:

%s

List %d to %d single words that capture the distinctive vocabulary and imagery of their writing. Each keyword must be exactly one word in Title Case.

Respond with JSON only: {"keywords": ["Word", ...]}`,
		userText, constants.AnalysisConfig.MinKeywords, constants.AnalysisConfig.MaxKeywords)
}

// BuildScriptPrompt polishes the transcript into a single block of prose.
// The generator must not invent content the transcript does not contain.
func BuildScriptPrompt(transcript string) string {
	return fmt.Sprintf(`Polish this collaboratively written story into one continuous block of prose. Smooth the seams between lines, fix grammar, and keep every event and image that is already there. Do not invent dialogue, scene headings, or any content that is not explicit in the text.

Story:
%s

Respond with JSON only: {"script": "<the polished prose>"}`,
		transcript)
}
