package session

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/storyduet/storyduet-go/internal/analysis"
	"github.com/storyduet/storyduet-go/internal/constants"
	"github.com/storyduet/storyduet-go/internal/domain"
	"github.com/storyduet/storyduet-go/internal/prompt"
	"github.com/storyduet/storyduet-go/internal/util"
	apperrors "github.com/storyduet/storyduet-go/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrOperationInFlight rejects a second async-bearing trigger while one
	// is already pending.
	ErrOperationInFlight = fmt.Errorf("an operation is already in flight")

	// ErrDuologueActive rejects human submissions while the automated mode runs.
	ErrDuologueActive = fmt.Errorf("human input is disabled during a duologue")
)

// TurnTaker is the turn engine boundary.
type TurnTaker interface {
	TakeTurn(ctx context.Context, req domain.GenerationRequest) (string, error)
}

// AnalysisRunner is the analysis pipeline boundary.
type AnalysisRunner interface {
	Analyze(ctx context.Context, in analysis.Input) (*domain.AnalysisRecord, []analysis.Notice)
}

// SnapshotStore persists in-progress session state so a refresh can resume.
// Optional; failures are logged and ignored.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, session *domain.Session) error
	ClearSnapshot(ctx context.Context) error
}

// Config wires the machine's collaborators. Everything is injected; the
// machine holds no ambient clients.
type Config struct {
	Engine          TurnTaker
	Pipeline        AnalysisRunner
	Store           analysis.StoryStore
	Snapshots       SnapshotStore
	Rand            *rand.Rand
	Logger          *zap.Logger
	DefaultDuration time.Duration
	DuologuePacing  time.Duration
}

// Machine owns the authoritative session state and the legal transitions
// between states. All mutation happens through its methods.
type Machine struct {
	mu        sync.Mutex
	session   domain.Session
	epoch     uint64
	busy      bool
	observers []Observer

	engine    TurnTaker
	pipeline  AnalysisRunner
	store     analysis.StoryStore
	snapshots SnapshotStore
	rng       *rand.Rand
	logger    *zap.Logger

	defaultDuration time.Duration
	pacing          time.Duration
	timerStartedAt  time.Time
	duologueStop    chan struct{}
}

func NewMachine(cfg Config) *Machine {
	pacing := cfg.DuologuePacing
	if pacing <= 0 {
		pacing = constants.DuologueConfig.PacingDelay
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Machine{
		session: domain.Session{
			Status:    domain.StatusLoading,
			QuitStage: domain.QuitNone,
		},
		engine:          cfg.Engine,
		pipeline:        cfg.Pipeline,
		store:           cfg.Store,
		snapshots:       cfg.Snapshots,
		rng:             rng,
		logger:          cfg.Logger,
		defaultDuration: cfg.DefaultDuration,
		pacing:          pacing,
	}
}

// Subscribe registers an observer for machine events.
func (m *Machine) Subscribe(obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// Snapshot returns a copy of the current session state.
func (m *Machine) Snapshot() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.session
	snapshot.Transcript = append([]domain.Turn(nil), m.session.Transcript...)
	return snapshot
}

// Status returns the current lifecycle status.
func (m *Machine) Status() domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Status
}

func (m *Machine) emit(events ...Event) {
	m.mu.Lock()
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	for _, obs := range observers {
		for _, event := range events {
			obs(event)
		}
	}
}

// CompleteLoading leaves the loading state. First-time visitors pass through
// onboarding; returning ones go straight to the menu.
func (m *Machine) CompleteLoading(onboarded bool) error {
	m.mu.Lock()
	if m.session.Status != domain.StatusLoading {
		defer m.mu.Unlock()
		return m.invalidTransition("complete_loading")
	}

	from := m.session.Status
	if onboarded {
		m.session.Status = domain.StatusMenu
	} else {
		m.session.Status = domain.StatusOnboarding
	}
	to := m.session.Status
	m.mu.Unlock()

	m.emit(Event{Kind: EventTransition, From: from, To: to})
	return nil
}

// CompleteOnboarding moves a first-time visitor to the menu.
func (m *Machine) CompleteOnboarding() error {
	m.mu.Lock()
	if m.session.Status != domain.StatusOnboarding {
		defer m.mu.Unlock()
		return m.invalidTransition("complete_onboarding")
	}
	m.session.Status = domain.StatusMenu
	m.mu.Unlock()

	m.emit(Event{Kind: EventTransition, From: domain.StatusOnboarding, To: domain.StatusMenu})
	return nil
}

// Restore resumes a snapshotted play session after a restart. Only a solo
// session still inside its play budget is resumable, and only while the
// machine is in loading; anything else is rejected so the caller can clear
// the stale snapshot.
func (m *Machine) Restore(ctx context.Context, snap *domain.Session) error {
	if snap == nil || snap.Status != domain.StatusPlaying {
		return apperrors.NewValidationError("snapshot is not resumable", "status", snapshotStatus(snap))
	}
	if snap.Settings.Mode != domain.ModeSolo {
		return apperrors.NewValidationError("only solo sessions resume", "mode", string(snap.Settings.Mode))
	}
	remaining := snap.Settings.Duration - time.Since(snap.StartedAt)
	if remaining <= 0 {
		return apperrors.NewValidationError("snapshot play budget already spent", "status", string(snap.Status))
	}

	m.mu.Lock()
	if m.session.Status != domain.StatusLoading {
		defer m.mu.Unlock()
		return m.invalidTransition("restore")
	}
	m.session = *snap
	m.session.Transcript = append([]domain.Turn(nil), snap.Transcript...)
	m.session.QuitStage = domain.QuitNone
	m.busy = false
	m.timerStartedAt = snap.StartedAt
	epoch := m.epoch
	m.mu.Unlock()

	m.logger.Info("Session restored from snapshot",
		zap.String("genre", string(snap.Settings.Genre)),
		zap.Int("turns", len(snap.Transcript)),
		zap.Duration("remaining", remaining),
	)
	m.emit(Event{Kind: EventTransition, From: domain.StatusLoading, To: domain.StatusPlaying})

	go m.watchTimer(ctx, epoch, remaining)
	return nil
}

func snapshotStatus(snap *domain.Session) string {
	if snap == nil {
		return "nil"
	}
	return string(snap.Status)
}

// StartSession draws the persona pair and begins opening generation. The
// opening line is always generator-authored.
func (m *Machine) StartSession(ctx context.Context, settings domain.SessionSettings) error {
	m.mu.Lock()
	if m.session.Status != domain.StatusMenu {
		defer m.mu.Unlock()
		return m.invalidTransition("start_session")
	}
	if m.busy {
		m.mu.Unlock()
		return ErrOperationInFlight
	}

	if settings.Duration <= 0 {
		settings.Duration = m.defaultDuration
	}
	if settings.Mode == "" {
		settings.Mode = domain.ModeSolo
	}

	pair, err := domain.DrawPair(m.rng, settings.Genre)
	if err != nil {
		m.mu.Unlock()
		return apperrors.NewValidationError("cannot draw personas", "genre", string(settings.Genre))
	}

	m.session.Settings = settings
	m.session.Personas = pair
	m.session.Status = domain.StatusGeneratingOpening
	m.session.NextSpeaker = domain.SpeakerGenerator
	m.busy = true
	epoch := m.epoch
	m.mu.Unlock()

	m.logger.Info("Session starting",
		zap.String("genre", string(settings.Genre)),
		zap.String("mode", string(settings.Mode)),
		zap.String("persona_a", pair.A.Name),
		zap.String("persona_b", pair.B.Name),
	)
	m.emit(Event{Kind: EventTransition, From: domain.StatusMenu, To: domain.StatusGeneratingOpening})

	go m.generateOpening(ctx, epoch)
	return nil
}

func (m *Machine) generateOpening(ctx context.Context, epoch uint64) {
	m.mu.Lock()
	req := m.buildRequestLocked(true, "")
	m.mu.Unlock()

	line, err := m.engine.TakeTurn(ctx, req)

	m.mu.Lock()
	if m.epoch != epoch || m.session.Status != domain.StatusGeneratingOpening {
		m.mu.Unlock()
		m.logger.Debug("Stale opening result discarded")
		return
	}

	if err != nil {
		// Opening exhaustion degrades back to the menu; the notice is
		// recoverable, never fatal.
		m.logger.Warn("Opening generation failed, returning to menu", zap.Error(err))
		m.clearSessionLocked()
		m.busy = false
		m.mu.Unlock()
		m.emit(
			Event{Kind: EventTransition, From: domain.StatusGeneratingOpening, To: domain.StatusMenu},
			Event{Kind: EventNotice, Notice: "We couldn't start your story. Please try again."},
		)
		return
	}

	turn := domain.Turn{Speaker: domain.SpeakerGenerator, Text: line}
	if m.session.Settings.Mode == domain.ModeDuologue {
		turn.PersonaLabel = m.session.Personas.A.Name
	}
	m.session.Append(turn)
	m.session.Status = domain.StatusPlaying
	m.session.NextSpeaker = domain.SpeakerUser
	m.session.StartedAt = time.Now()
	m.timerStartedAt = m.session.StartedAt
	m.busy = false

	var stop chan struct{}
	if m.session.Settings.Mode == domain.ModeDuologue {
		m.session.NextSpeaker = domain.SpeakerGenerator
		stop = make(chan struct{})
		m.duologueStop = stop
		m.busy = true
	}
	duration := m.session.Settings.Duration
	m.mu.Unlock()

	m.saveSnapshot(ctx)
	m.emit(
		Event{Kind: EventTransition, From: domain.StatusGeneratingOpening, To: domain.StatusPlaying},
		Event{Kind: EventTurn, Turn: &turn},
	)

	go m.watchTimer(ctx, epoch, duration)
	if stop != nil {
		go m.runDuologue(ctx, epoch, stop)
	}
}

// watchTimer ends the session when the play budget runs out. Expiry is legal
// even while a turn call or the quit confirmation is pending.
func (m *Machine) watchTimer(ctx context.Context, epoch uint64, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	m.mu.Lock()
	if m.epoch != epoch || m.session.Status != domain.StatusPlaying {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.logger.Info("Session timer expired")
	if err := m.TimerExpired(ctx); err != nil {
		m.logger.Debug("Timer expiry skipped", zap.Error(err))
	}
}

// RemainingTime reports how much of the play timer is left, zero outside play.
func (m *Machine) RemainingTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Status != domain.StatusPlaying || m.timerStartedAt.IsZero() {
		return 0
	}
	remaining := m.session.Settings.Duration - time.Since(m.timerStartedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SubmitTurn appends the human's line and starts generating the reply.
// Transcript order is guaranteed: the user turn is appended before the
// generator call is issued.
func (m *Machine) SubmitTurn(ctx context.Context, text string) error {
	sanitized := util.SanitizeInput(text, constants.TurnConfig.MaxInputLength)
	if sanitized == "" {
		return apperrors.NewValidationError("turn text must not be empty", "text", text)
	}

	m.mu.Lock()
	if m.session.Status != domain.StatusPlaying || m.session.QuitStage != domain.QuitNone {
		defer m.mu.Unlock()
		return m.invalidTransition("submit_turn")
	}
	if m.session.Settings.Mode == domain.ModeDuologue {
		m.mu.Unlock()
		return ErrDuologueActive
	}
	if m.busy {
		m.mu.Unlock()
		return ErrOperationInFlight
	}

	userTurn := domain.Turn{Speaker: domain.SpeakerUser, Text: sanitized}
	m.session.Append(userTurn)
	m.session.NextSpeaker = domain.SpeakerGenerator
	m.busy = true
	epoch := m.epoch
	req := m.buildRequestLocked(false, "")
	m.mu.Unlock()

	m.emit(Event{Kind: EventTurn, Turn: &userTurn})

	go m.generateReply(ctx, epoch, req)
	return nil
}

func (m *Machine) generateReply(ctx context.Context, epoch uint64, req domain.GenerationRequest) {
	line, err := m.engine.TakeTurn(ctx, req)

	m.mu.Lock()
	if m.epoch != epoch || m.session.Status != domain.StatusPlaying {
		// The timer expired or the session moved on; the late result is a no-op.
		m.mu.Unlock()
		m.logger.Debug("Stale turn result discarded")
		return
	}

	if err != nil {
		m.busy = false
		m.mu.Unlock()
		m.logger.Warn("Turn generation failed", zap.Error(err))
		m.emit(Event{Kind: EventNotice, Notice: "Your partner lost the thread for a moment. Try another line."})
		return
	}

	turn := domain.Turn{Speaker: domain.SpeakerGenerator, Text: line}
	m.session.Append(turn)
	m.session.NextSpeaker = domain.SpeakerUser
	m.busy = false
	m.mu.Unlock()

	m.saveSnapshot(ctx)
	m.emit(Event{Kind: EventTurn, Turn: &turn})
}

// EndSession finishes play and starts the analysis pipeline. Reached by the
// explicit end action or by timer expiry; both discard any pending turn.
func (m *Machine) EndSession(ctx context.Context) error {
	m.mu.Lock()
	if m.session.Status != domain.StatusPlaying {
		defer m.mu.Unlock()
		return m.invalidTransition("end_session")
	}

	// Invalidate in-flight turn results and stop a running duologue.
	m.epoch++
	if m.duologueStop != nil {
		close(m.duologueStop)
		m.duologueStop = nil
	}

	m.session.Status = domain.StatusGeneratingAnalysis
	m.session.QuitStage = domain.QuitNone
	m.busy = true
	epoch := m.epoch

	in := analysis.Input{
		Transcript: append([]domain.Turn(nil), m.session.Transcript...),
		UserText:   m.session.UserText(),
		FullText:   m.session.TranscriptText(),
		Genre:      m.session.Settings.Genre,
		Personas:   m.session.Personas,
		Mode:       m.session.Settings.Mode,
		CreatorID:  m.session.Settings.CreatorID,
	}
	m.mu.Unlock()

	m.emit(Event{Kind: EventTransition, From: domain.StatusPlaying, To: domain.StatusGeneratingAnalysis})

	go m.runAnalysis(ctx, epoch, in)
	return nil
}

// TimerExpired is the timer-driven alias for EndSession. Expiry is valid
// even while a turn call is pending.
func (m *Machine) TimerExpired(ctx context.Context) error {
	return m.EndSession(ctx)
}

func (m *Machine) runAnalysis(ctx context.Context, epoch uint64, in analysis.Input) {
	record, notices := m.pipeline.Analyze(ctx, in)

	m.mu.Lock()
	if m.epoch != epoch || m.session.Status != domain.StatusGeneratingAnalysis {
		m.mu.Unlock()
		m.logger.Debug("Stale analysis result discarded")
		return
	}

	m.session.Analysis = record
	m.session.Status = domain.StatusComplete
	m.busy = false
	m.mu.Unlock()

	m.clearSnapshot(ctx)

	events := make([]Event, 0, len(notices)+2)
	events = append(events, Event{Kind: EventTransition, From: domain.StatusGeneratingAnalysis, To: domain.StatusComplete})
	for _, n := range notices {
		events = append(events, Event{Kind: EventNotice, Notice: n.Message})
	}
	events = append(events, Event{Kind: EventAnalysis, Analysis: record})
	m.emit(events...)
}

// RequestQuit opens the quit confirmation from playing.
func (m *Machine) RequestQuit() error {
	return m.setQuitStage("request_quit", domain.QuitNone, domain.QuitConfirm)
}

// CancelQuit abandons the quit flow and resumes playing.
func (m *Machine) CancelQuit() error {
	m.mu.Lock()
	if m.session.Status != domain.StatusPlaying || m.session.QuitStage == domain.QuitNone {
		defer m.mu.Unlock()
		return m.invalidTransition("cancel_quit")
	}
	m.session.QuitStage = domain.QuitNone
	m.mu.Unlock()

	m.emit(Event{Kind: EventTransition, From: domain.StatusPlaying, To: domain.StatusPlaying, QuitStage: domain.QuitNone})
	return nil
}

// ConfirmQuit advances to the save-or-discard choice.
func (m *Machine) ConfirmQuit() error {
	return m.setQuitStage("confirm_quit", domain.QuitConfirm, domain.QuitSaveChoice)
}

func (m *Machine) setQuitStage(action string, from, to domain.QuitStage) error {
	m.mu.Lock()
	if m.session.Status != domain.StatusPlaying || m.session.QuitStage != from {
		defer m.mu.Unlock()
		return m.invalidTransition(action)
	}
	m.session.QuitStage = to
	m.mu.Unlock()

	m.emit(Event{Kind: EventTransition, From: domain.StatusPlaying, To: domain.StatusPlaying, QuitStage: to})
	return nil
}

// ChooseDiscard quits without saving: straight back to the menu, no
// persistence gateway call.
func (m *Machine) ChooseDiscard(ctx context.Context) error {
	m.mu.Lock()
	if m.session.Status != domain.StatusPlaying || m.session.QuitStage != domain.QuitSaveChoice {
		defer m.mu.Unlock()
		return m.invalidTransition("choose_discard")
	}
	m.abandonPlayLocked()
	m.mu.Unlock()

	m.clearSnapshot(ctx)
	m.emit(Event{Kind: EventTransition, From: domain.StatusPlaying, To: domain.StatusMenu})
	return nil
}

// ChooseSave persists the story as written, then returns to the menu.
// Exactly one gateway call is made. A missing creator is an explicit
// rejection of the save; a gateway failure degrades to a notice. Either
// way the session still ends.
func (m *Machine) ChooseSave(ctx context.Context) error {
	m.mu.Lock()
	if m.session.Status != domain.StatusPlaying || m.session.QuitStage != domain.QuitSaveChoice {
		defer m.mu.Unlock()
		return m.invalidTransition("choose_save")
	}

	draft := domain.StoryDraft{
		Title:     "An Unfinished Duet",
		Content:   m.session.TranscriptText(),
		CreatorID: m.session.Settings.CreatorID,
		Genre:     m.session.Settings.Genre,
		GameMode:  m.session.Settings.Mode,
	}
	m.abandonPlayLocked()
	m.mu.Unlock()

	var saveErr error
	var notice string
	if draft.CreatorID == "" {
		saveErr = apperrors.NewOwnershipError("cannot save a story without a creator")
		notice = "You need to be signed in to save a story."
	} else if _, err := m.store.Save(ctx, draft); err != nil {
		saveErr = err
		notice = "We couldn't save your story, but your session has ended safely."
		m.logger.Warn("Quit-save failed", zap.Error(err))
	}

	m.clearSnapshot(ctx)

	events := []Event{{Kind: EventTransition, From: domain.StatusPlaying, To: domain.StatusMenu}}
	if notice != "" {
		events = append(events, Event{Kind: EventNotice, Notice: notice})
	}
	m.emit(events...)

	return saveErr
}

// Reset returns a completed session to the menu.
func (m *Machine) Reset() error {
	m.mu.Lock()
	if m.session.Status != domain.StatusComplete {
		defer m.mu.Unlock()
		return m.invalidTransition("reset")
	}
	m.clearSessionLocked()
	m.mu.Unlock()

	m.emit(Event{Kind: EventTransition, From: domain.StatusComplete, To: domain.StatusMenu})
	return nil
}

// abandonPlayLocked tears down play state on the quit path.
func (m *Machine) abandonPlayLocked() {
	m.epoch++
	if m.duologueStop != nil {
		close(m.duologueStop)
		m.duologueStop = nil
	}
	m.clearSessionLocked()
}

// clearSessionLocked implements the menu entry side effect: transcript,
// settings, personas and analysis are all dropped.
func (m *Machine) clearSessionLocked() {
	m.session = domain.Session{
		Status:    domain.StatusMenu,
		QuitStage: domain.QuitNone,
	}
	m.busy = false
	m.timerStartedAt = time.Time{}
}

// buildRequestLocked constructs a fresh generation request from current
// state. Caller holds the lock.
func (m *Machine) buildRequestLocked(opening bool, speakAs string) domain.GenerationRequest {
	latest := m.session.LastUserLine()
	if speakAs != "" {
		// Duologue lines mirror the previous line regardless of author.
		if last := m.session.LastTurn(); last != nil {
			latest = last.Text
		}
	}
	minWords, maxWords := prompt.WordBand(latest, opening)

	return domain.GenerationRequest{
		Genre:       m.session.Settings.Genre,
		Duration:    m.session.Settings.Duration,
		LatestInput: latest,
		History:     append([]domain.Turn(nil), m.session.Transcript...),
		PersonaA:    m.session.Personas.A,
		PersonaB:    m.session.Personas.B,
		Opening:     opening,
		SpeakAs:     speakAs,
		MinWords:    minWords,
		MaxWords:    maxWords,
	}
}

func (m *Machine) invalidTransition(action string) error {
	return apperrors.NewValidationError(
		fmt.Sprintf("action %s is not legal in the current state", action),
		"status", string(m.session.Status))
}

func (m *Machine) saveSnapshot(ctx context.Context) {
	if m.snapshots == nil {
		return
	}
	snapshot := m.Snapshot()
	if err := m.snapshots.SaveSnapshot(ctx, &snapshot); err != nil {
		m.logger.Debug("Session snapshot save failed", zap.Error(err))
	}
}

func (m *Machine) clearSnapshot(ctx context.Context) {
	if m.snapshots == nil {
		return
	}
	if err := m.snapshots.ClearSnapshot(ctx); err != nil {
		m.logger.Debug("Session snapshot clear failed", zap.Error(err))
	}
}
