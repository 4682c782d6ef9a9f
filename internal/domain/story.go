package domain

// StoryDraft is the write payload handed to the persistence gateway after a
// session completes.
type StoryDraft struct {
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	CreatorID  string     `json:"creator_id"`
	Mood       Mood       `json:"mood"`
	StyleMatch StyleMatch `json:"style_match"`
	Genre      Genre      `json:"genre"`
	GameMode   Mode       `json:"game_mode"`
}
