package session

import "github.com/storyduet/storyduet-go/internal/domain"

// EventKind tags what an observer notification carries.
type EventKind string

const (
	EventTransition EventKind = "transition"
	EventTurn       EventKind = "turn"
	EventNotice     EventKind = "notice"
	EventAnalysis   EventKind = "analysis"
)

// Event is delivered to subscribed observers after each state change. Side
// flows (reward unlocks, ad gating, UI chrome) hang off these instead of
// living inside the transition logic.
type Event struct {
	Kind      EventKind              `json:"kind"`
	From      domain.Status          `json:"from,omitempty"`
	To        domain.Status          `json:"to,omitempty"`
	QuitStage domain.QuitStage       `json:"quit_stage,omitempty"`
	Turn      *domain.Turn           `json:"turn,omitempty"`
	Notice    string                 `json:"notice,omitempty"`
	Analysis  *domain.AnalysisRecord `json:"analysis,omitempty"`
}

// Observer receives machine events. Called synchronously after the state
// change commits, outside the machine lock.
type Observer func(Event)
