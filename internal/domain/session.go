package domain

import (
	"fmt"
	"strings"
	"time"
)

// Speaker identifies who contributed a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerGenerator Speaker = "generator"
)

// Turn is one contributed line of story text. Immutable once appended.
type Turn struct {
	Speaker      Speaker `json:"speaker"`
	Text         string  `json:"text"`
	PersonaLabel string  `json:"persona_label,omitempty"`
}

// Status is the session lifecycle state. Every consumption site switches
// exhaustively over it; there is no catch-all path for illegal states.
type Status string

const (
	StatusLoading            Status = "loading"
	StatusOnboarding         Status = "onboarding"
	StatusMenu               Status = "menu"
	StatusGeneratingOpening  Status = "generating_opening"
	StatusPlaying            Status = "playing"
	StatusGeneratingAnalysis Status = "generating_analysis"
	StatusComplete           Status = "complete"
)

func (s Status) String() string {
	return string(s)
}

// QuitStage is the quit-confirmation sub-machine reached from playing.
type QuitStage string

const (
	QuitNone       QuitStage = "none"
	QuitConfirm    QuitStage = "confirm_quit"
	QuitSaveChoice QuitStage = "confirm_save_choice"
)

// Mode selects between the human/generator duet and the automated duologue.
type Mode string

const (
	ModeSolo     Mode = "solo"
	ModeDuologue Mode = "duologue"
)

// ParseMode validates a raw mode value. Empty selects the solo default.
func ParseMode(raw string) (Mode, error) {
	if raw == "" {
		return ModeSolo, nil
	}
	m := Mode(raw)
	switch m {
	case ModeSolo, ModeDuologue:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode: %q", raw)
}

// SessionSettings are chosen in the menu and fixed for the session.
// Duration is canonically in seconds.
type SessionSettings struct {
	Genre     Genre         `json:"genre"`
	Duration  time.Duration `json:"duration"`
	Mode      Mode          `json:"mode"`
	CreatorID string        `json:"creator_id"`
}

// Session is the authoritative session state. It is owned exclusively by the
// session machine and mutated only through state-machine transitions.
type Session struct {
	Status      Status          `json:"status"`
	QuitStage   QuitStage       `json:"quit_stage"`
	Settings    SessionSettings `json:"settings"`
	Personas    PersonaPair     `json:"personas"`
	Transcript  []Turn          `json:"transcript"`
	NextSpeaker Speaker         `json:"next_speaker"`
	StartedAt   time.Time       `json:"started_at"`
	Analysis    *AnalysisRecord `json:"analysis,omitempty"`
}

// Append adds a turn. The transcript is append-only.
func (s *Session) Append(turn Turn) {
	s.Transcript = append(s.Transcript, turn)
}

// LastTurn returns the most recent turn, or nil for an empty transcript.
func (s *Session) LastTurn() *Turn {
	if len(s.Transcript) == 0 {
		return nil
	}
	return &s.Transcript[len(s.Transcript)-1]
}

// LastUserLine returns the most recent human-authored line.
func (s *Session) LastUserLine() string {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Speaker == SpeakerUser {
			return s.Transcript[i].Text
		}
	}
	return ""
}

// UserText joins every human-authored line.
func (s *Session) UserText() string {
	var lines []string
	for _, t := range s.Transcript {
		if t.Speaker == SpeakerUser {
			lines = append(lines, t.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// TranscriptText renders the full story as plain prose lines.
func (s *Session) TranscriptText() string {
	lines := make([]string, 0, len(s.Transcript))
	for _, t := range s.Transcript {
		lines = append(lines, t.Text)
	}
	return strings.Join(lines, "\n")
}

// HasMeaningfulUserText reports whether the human contributed any
// non-trivial text. Trivial means empty or whitespace after trimming.
func (s *Session) HasMeaningfulUserText() bool {
	return strings.TrimSpace(s.UserText()) != ""
}
