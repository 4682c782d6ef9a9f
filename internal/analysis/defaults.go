package analysis

import (
	"strings"

	"github.com/storyduet/storyduet-go/internal/domain"
)

// Named fallback values substituted when one analysis sub-call fails.
const (
	DefaultTitle = "An Untitled Duet"
	DefaultQuote = "Some stories keep their secrets."
)

var DefaultMood = domain.Mood{
	Primary:    domain.EmotionMelancholy,
	Confidence: 0.5,
}

var DefaultStyle = domain.StyleMatch{
	Primary:   "Le Guin",
	Secondary: "Chandler",
}

func defaultKeywords() []string {
	return []string{"Quiet", "Drift", "Echo", "Thread", "Ember"}
}

// Unwritten-story template used when the human contributed no non-trivial
// text. A designed edge case, not a failure path: no generator is called.
const (
	unwrittenTitle  = "The Story That Waited"
	unwrittenQuote  = "Every blank page is a held breath."
	unwrittenScript = "This story is still waiting to be written. The opening line hangs in the air, and the page below it is yours whenever you want to come back."
)

var unwrittenMood = domain.Mood{
	Primary:    domain.EmotionSerene,
	Confidence: 1.0,
}

func unwrittenKeywords() []string {
	return []string{"Blank", "Waiting", "Quiet", "Promise", "Page"}
}

// UnwrittenRecord synthesizes the canned record for a session without
// meaningful user input.
func UnwrittenRecord(transcript []domain.Turn) *domain.AnalysisRecord {
	return &domain.AnalysisRecord{
		Title:       unwrittenTitle,
		QuoteBanner: unwrittenQuote,
		Mood:        unwrittenMood,
		Style:       domain.StyleMatch{},
		FamousQuote: "",
		Keywords:    unwrittenKeywords(),
		FinalScript: unwrittenScript,
		Transcript:  transcript,
		StoryID:     domain.StoryIDUnsaved,
	}
}

func isTrivial(userText string) bool {
	return strings.TrimSpace(userText) == ""
}
