package domain

// Emotion is the fixed 9-value mood vocabulary the mood generator must pick from.
type Emotion string

const (
	EmotionJoyful      Emotion = "Joyful"
	EmotionMelancholy  Emotion = "Melancholy"
	EmotionTense       Emotion = "Tense"
	EmotionHopeful     Emotion = "Hopeful"
	EmotionBittersweet Emotion = "Bittersweet"
	EmotionOminous     Emotion = "Ominous"
	EmotionWhimsical   Emotion = "Whimsical"
	EmotionSerene      Emotion = "Serene"
	EmotionChaotic     Emotion = "Chaotic"
)

// AllEmotions lists the mood vocabulary in prompt order.
var AllEmotions = []Emotion{
	EmotionJoyful, EmotionMelancholy, EmotionTense,
	EmotionHopeful, EmotionBittersweet, EmotionOminous,
	EmotionWhimsical, EmotionSerene, EmotionChaotic,
}

// IsValidEmotion reports membership in the fixed vocabulary.
func IsValidEmotion(e Emotion) bool {
	for _, known := range AllEmotions {
		if e == known {
			return true
		}
	}
	return false
}

// Mood is the derived emotional reading of the user's writing.
type Mood struct {
	Primary    Emotion `json:"primary"`
	Confidence float64 `json:"confidence"`
}

// StyleMatch ranks the two catalog personas closest to the user's writing.
type StyleMatch struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// StoryIDUnsaved is the sentinel id recorded when persistence fails or is
// skipped. The analysis is still shown to the user.
const StoryIDUnsaved = "unsaved"

// AnalysisRecord is the composite post-session artifact. Built at most once
// per completed session and read-only afterward. It references the transcript
// but does not own it.
type AnalysisRecord struct {
	Title       string     `json:"title"`
	QuoteBanner string     `json:"quote_banner"`
	Mood        Mood       `json:"mood"`
	Style       StyleMatch `json:"style"`
	FamousQuote string     `json:"famous_quote"`
	Keywords    []string   `json:"keywords"`
	FinalScript string     `json:"final_script"`
	Transcript  []Turn     `json:"transcript"`
	StoryID     string     `json:"story_id"`
}
