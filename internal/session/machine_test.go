package session

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/storyduet/storyduet-go/internal/analysis"
	"github.com/storyduet/storyduet-go/internal/domain"
	apperrors "github.com/storyduet/storyduet-go/pkg/errors"
	"go.uber.org/zap"
)

type fakeEngine struct {
	lines []string
	errs  []error
	gate  chan struct{} // when non-nil, TakeTurn blocks until the gate closes
	calls int
}

func (f *fakeEngine) TakeTurn(_ context.Context, _ domain.GenerationRequest) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	idx := f.calls
	f.calls++
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	line := "a line"
	if idx < len(f.lines) {
		line = f.lines[idx]
	}
	if err != nil {
		return "", err
	}
	return line, nil
}

type fakePipeline struct {
	record  *domain.AnalysisRecord
	notices []analysis.Notice
	calls   int
}

func (f *fakePipeline) Analyze(_ context.Context, in analysis.Input) (*domain.AnalysisRecord, []analysis.Notice) {
	f.calls++
	if f.record != nil {
		return f.record, f.notices
	}
	return &domain.AnalysisRecord{
		Title:      "Test Story",
		Transcript: in.Transcript,
		StoryID:    domain.StoryIDUnsaved,
	}, f.notices
}

type fakeStoryStore struct {
	id    string
	err   error
	calls int
	last  domain.StoryDraft
}

func (f *fakeStoryStore) Save(_ context.Context, story domain.StoryDraft) (string, error) {
	f.calls++
	f.last = story
	return f.id, f.err
}

func newTestMachine(engine TurnTaker, store analysis.StoryStore) *Machine {
	return NewMachine(Config{
		Engine:          engine,
		Pipeline:        &fakePipeline{},
		Store:           store,
		Rand:            rand.New(rand.NewSource(7)),
		Logger:          zap.NewNop(),
		DefaultDuration: 2 * time.Minute,
	})
}

func waitForStatus(t *testing.T, m *Machine, want domain.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Status() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %q, stuck at %q", want, m.Status())
}

func startPlaying(t *testing.T, m *Machine, settings domain.SessionSettings) {
	t.Helper()
	if err := m.CompleteLoading(true); err != nil {
		t.Fatalf("complete loading: %v", err)
	}
	if err := m.StartSession(context.Background(), settings); err != nil {
		t.Fatalf("start session: %v", err)
	}
	waitForStatus(t, m, domain.StatusPlaying)
}

func TestLoadingRoutesThroughOnboardingForFirstVisit(t *testing.T) {
	m := newTestMachine(&fakeEngine{}, &fakeStoryStore{})

	if err := m.CompleteLoading(false); err != nil {
		t.Fatalf("complete loading: %v", err)
	}
	if got := m.Status(); got != domain.StatusOnboarding {
		t.Fatalf("expected onboarding, got %q", got)
	}
	if err := m.CompleteOnboarding(); err != nil {
		t.Fatalf("complete onboarding: %v", err)
	}
	if got := m.Status(); got != domain.StatusMenu {
		t.Fatalf("expected menu, got %q", got)
	}
}

func TestSoloTurnsAlternateSpeakers(t *testing.T) {
	engine := &fakeEngine{lines: []string{"Opening line.", "Reply line."}}
	m := newTestMachine(engine, &fakeStoryStore{})

	startPlaying(t, m, domain.SessionSettings{Genre: domain.GenreNoir})

	if err := m.SubmitTurn(context.Background(), "My line."); err != nil {
		t.Fatalf("submit turn: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(m.Snapshot().Transcript) == 3 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	transcript := m.Snapshot().Transcript
	if len(transcript) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(transcript))
	}
	wantSpeakers := []domain.Speaker{domain.SpeakerGenerator, domain.SpeakerUser, domain.SpeakerGenerator}
	for i, want := range wantSpeakers {
		if transcript[i].Speaker != want {
			t.Errorf("turn %d: expected speaker %q, got %q", i, want, transcript[i].Speaker)
		}
	}
	if transcript[1].Text != "My line." {
		t.Errorf("user turn text: got %q", transcript[1].Text)
	}
}

func TestSubmitWhileGeneratingIsRejected(t *testing.T) {
	gate := make(chan struct{})
	engine := &fakeEngine{gate: gate}
	m := newTestMachine(engine, &fakeStoryStore{})

	if err := m.CompleteLoading(true); err != nil {
		t.Fatalf("complete loading: %v", err)
	}
	if err := m.StartSession(context.Background(), domain.SessionSettings{Genre: domain.GenreFantasy}); err != nil {
		t.Fatalf("start session: %v", err)
	}
	// Opening is still pending behind the gate.
	close(gate)
	waitForStatus(t, m, domain.StatusPlaying)

	gate2 := make(chan struct{})
	engine.gate = gate2
	if err := m.SubmitTurn(context.Background(), "First line."); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	err := m.SubmitTurn(context.Background(), "Second line while busy.")
	if !errors.Is(err, ErrOperationInFlight) {
		t.Fatalf("expected ErrOperationInFlight, got %v", err)
	}

	close(gate2)
}

func TestOpeningFailureReturnsToMenu(t *testing.T) {
	engine := &fakeEngine{errs: []error{apperrors.NewGenerationError("no opening", "turn", nil)}}
	m := newTestMachine(engine, &fakeStoryStore{})

	noticeCh := make(chan string, 1)
	m.Subscribe(func(ev Event) {
		if ev.Kind == EventNotice {
			select {
			case noticeCh <- ev.Notice:
			default:
			}
		}
	})

	if err := m.CompleteLoading(true); err != nil {
		t.Fatalf("complete loading: %v", err)
	}
	if err := m.StartSession(context.Background(), domain.SessionSettings{Genre: domain.GenreHorror}); err != nil {
		t.Fatalf("start session: %v", err)
	}
	waitForStatus(t, m, domain.StatusMenu)

	select {
	case <-noticeCh:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a recoverable notice after opening failure")
	}
	if len(m.Snapshot().Transcript) != 0 {
		t.Error("expected an empty transcript back at the menu")
	}
}

func TestReplyFailureKeepsSessionPlaying(t *testing.T) {
	engine := &fakeEngine{
		lines: []string{"Opening line."},
		errs:  []error{nil, apperrors.NewGenerationError("reply failed", "turn", nil)},
	}
	m := newTestMachine(engine, &fakeStoryStore{})

	noticeCh := make(chan string, 1)
	m.Subscribe(func(ev Event) {
		if ev.Kind == EventNotice {
			select {
			case noticeCh <- ev.Notice:
			default:
			}
		}
	})

	startPlaying(t, m, domain.SessionSettings{Genre: domain.GenreSciFi})

	if err := m.SubmitTurn(context.Background(), "A doomed line."); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-noticeCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for failure notice")
	}

	if got := m.Status(); got != domain.StatusPlaying {
		t.Fatalf("session must keep playing after a failed reply, got %q", got)
	}
	// The user's turn stays in the transcript.
	transcript := m.Snapshot().Transcript
	if len(transcript) != 2 {
		t.Fatalf("expected opening + user turn, got %d", len(transcript))
	}
	if transcript[1].Speaker != domain.SpeakerUser {
		t.Errorf("expected trailing user turn, got %q", transcript[1].Speaker)
	}
}

func TestTimerExpiryDiscardsPendingTurn(t *testing.T) {
	engine := &fakeEngine{lines: []string{"Opening line.", "Late reply."}}
	m := newTestMachine(engine, &fakeStoryStore{})

	startPlaying(t, m, domain.SessionSettings{Genre: domain.GenreNoir})

	gate := make(chan struct{})
	engine.gate = gate
	if err := m.SubmitTurn(context.Background(), "Last words."); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Expire the timer while the reply is still pending.
	if err := m.TimerExpired(context.Background()); err != nil {
		t.Fatalf("timer expired: %v", err)
	}
	waitForStatus(t, m, domain.StatusComplete)
	before := len(m.Snapshot().Transcript)

	// Release the stale reply; it must be discarded.
	close(gate)
	time.Sleep(20 * time.Millisecond)

	after := len(m.Snapshot().Transcript)
	if before != after {
		t.Fatalf("stale reply was appended: %d -> %d turns", before, after)
	}
	if m.Snapshot().Analysis == nil {
		t.Error("expected an analysis record on the completed session")
	}
}

func TestQuitSaveMakesExactlyOneStoreCall(t *testing.T) {
	engine := &fakeEngine{lines: []string{"Opening line."}}
	store := &fakeStoryStore{id: "story-11"}
	m := newTestMachine(engine, store)

	startPlaying(t, m, domain.SessionSettings{Genre: domain.GenreRomance, CreatorID: "user-3"})

	if err := m.RequestQuit(); err != nil {
		t.Fatalf("request quit: %v", err)
	}
	if err := m.ConfirmQuit(); err != nil {
		t.Fatalf("confirm quit: %v", err)
	}
	if err := m.ChooseSave(context.Background()); err != nil {
		t.Fatalf("choose save: %v", err)
	}

	if store.calls != 1 {
		t.Fatalf("expected exactly one save, got %d", store.calls)
	}
	if store.last.CreatorID != "user-3" {
		t.Errorf("saved creator: got %q", store.last.CreatorID)
	}
	if got := m.Status(); got != domain.StatusMenu {
		t.Fatalf("expected menu after save, got %q", got)
	}
	if len(m.Snapshot().Transcript) != 0 {
		t.Error("expected the transcript cleared after quitting")
	}
}

func TestQuitDiscardNeverTouchesStore(t *testing.T) {
	engine := &fakeEngine{lines: []string{"Opening line."}}
	store := &fakeStoryStore{}
	m := newTestMachine(engine, store)

	startPlaying(t, m, domain.SessionSettings{Genre: domain.GenreComedy, CreatorID: "user-3"})

	if err := m.RequestQuit(); err != nil {
		t.Fatalf("request quit: %v", err)
	}
	if err := m.ConfirmQuit(); err != nil {
		t.Fatalf("confirm quit: %v", err)
	}
	if err := m.ChooseDiscard(context.Background()); err != nil {
		t.Fatalf("choose discard: %v", err)
	}

	if store.calls != 0 {
		t.Fatalf("discard must not call the store, got %d calls", store.calls)
	}
	if got := m.Status(); got != domain.StatusMenu {
		t.Fatalf("expected menu after discard, got %q", got)
	}
}

func TestQuitSaveWithoutCreatorIsRejected(t *testing.T) {
	engine := &fakeEngine{lines: []string{"Opening line."}}
	store := &fakeStoryStore{}
	m := newTestMachine(engine, store)

	startPlaying(t, m, domain.SessionSettings{Genre: domain.GenreNoir})

	if err := m.RequestQuit(); err != nil {
		t.Fatalf("request quit: %v", err)
	}
	if err := m.ConfirmQuit(); err != nil {
		t.Fatalf("confirm quit: %v", err)
	}

	err := m.ChooseSave(context.Background())
	var oe *apperrors.OwnershipError
	if !errors.As(err, &oe) {
		t.Fatalf("expected ownership error, got %v", err)
	}
	if store.calls != 0 {
		t.Fatalf("rejected save must not reach the store, got %d calls", store.calls)
	}
	// The session still ends even though the save was rejected.
	if got := m.Status(); got != domain.StatusMenu {
		t.Fatalf("expected menu, got %q", got)
	}
}

func TestCancelQuitResumesPlay(t *testing.T) {
	engine := &fakeEngine{lines: []string{"Opening line.", "Reply."}}
	m := newTestMachine(engine, &fakeStoryStore{})

	startPlaying(t, m, domain.SessionSettings{Genre: domain.GenreFantasy})

	if err := m.RequestQuit(); err != nil {
		t.Fatalf("request quit: %v", err)
	}
	// Submissions are blocked while the confirmation is open.
	if err := m.SubmitTurn(context.Background(), "Blocked line."); err == nil {
		t.Fatal("expected submit to be rejected during quit confirmation")
	}
	if err := m.CancelQuit(); err != nil {
		t.Fatalf("cancel quit: %v", err)
	}
	if err := m.SubmitTurn(context.Background(), "Resumed line."); err != nil {
		t.Fatalf("submit after cancel: %v", err)
	}
}

func TestSubmitDuringDuologueIsRejected(t *testing.T) {
	engine := &fakeEngine{lines: []string{"Opening line."}}
	m := NewMachine(Config{
		Engine:         engine,
		Pipeline:       &fakePipeline{},
		Store:          &fakeStoryStore{},
		Rand:           rand.New(rand.NewSource(7)),
		Logger:         zap.NewNop(),
		DuologuePacing: time.Hour, // never ticks during the test
	})

	if err := m.CompleteLoading(true); err != nil {
		t.Fatalf("complete loading: %v", err)
	}
	if err := m.StartSession(context.Background(), domain.SessionSettings{
		Genre: domain.GenreSciFi,
		Mode:  domain.ModeDuologue,
	}); err != nil {
		t.Fatalf("start session: %v", err)
	}
	waitForStatus(t, m, domain.StatusPlaying)

	err := m.SubmitTurn(context.Background(), "Human interruption.")
	if !errors.Is(err, ErrDuologueActive) {
		t.Fatalf("expected ErrDuologueActive, got %v", err)
	}

	if opening := m.Snapshot().Transcript[0]; opening.PersonaLabel == "" {
		t.Error("duologue opening must carry a persona label")
	}

	if err := m.EndSession(context.Background()); err != nil {
		t.Fatalf("end session: %v", err)
	}
	waitForStatus(t, m, domain.StatusComplete)
}

func TestResetClearsCompletedSession(t *testing.T) {
	engine := &fakeEngine{lines: []string{"Opening line."}}
	m := newTestMachine(engine, &fakeStoryStore{})

	startPlaying(t, m, domain.SessionSettings{Genre: domain.GenreNoir})

	if err := m.EndSession(context.Background()); err != nil {
		t.Fatalf("end session: %v", err)
	}
	waitForStatus(t, m, domain.StatusComplete)

	if err := m.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	snapshot := m.Snapshot()
	if snapshot.Status != domain.StatusMenu {
		t.Fatalf("expected menu, got %q", snapshot.Status)
	}
	if len(snapshot.Transcript) != 0 || snapshot.Analysis != nil {
		t.Error("reset must clear transcript and analysis")
	}
}

func TestTimerExpiresOnItsOwn(t *testing.T) {
	engine := &fakeEngine{lines: []string{"Opening line."}}
	m := newTestMachine(engine, &fakeStoryStore{})

	startPlaying(t, m, domain.SessionSettings{
		Genre:    domain.GenreNoir,
		Duration: 30 * time.Millisecond,
	})

	waitForStatus(t, m, domain.StatusComplete)
	if m.RemainingTime() != 0 {
		t.Error("remaining time must be zero after expiry")
	}
}

func TestRemainingTimeCountsDownDuringPlay(t *testing.T) {
	engine := &fakeEngine{lines: []string{"Opening line."}}
	m := newTestMachine(engine, &fakeStoryStore{})

	if m.RemainingTime() != 0 {
		t.Error("no timer before play starts")
	}

	startPlaying(t, m, domain.SessionSettings{
		Genre:    domain.GenreNoir,
		Duration: time.Minute,
	})

	remaining := m.RemainingTime()
	if remaining <= 0 || remaining > time.Minute {
		t.Fatalf("remaining time out of range: %v", remaining)
	}
}

func playingSnapshot(startedAt time.Time, mode domain.Mode) *domain.Session {
	return &domain.Session{
		Status: domain.StatusPlaying,
		Settings: domain.SessionSettings{
			Genre:    domain.GenreNoir,
			Duration: time.Minute,
			Mode:     mode,
		},
		Personas: domain.PersonaPair{
			A: domain.Persona{Name: "Chandler", Style: "clipped"},
			B: domain.Persona{Name: "Hammett", Style: "spare"},
		},
		Transcript: []domain.Turn{
			{Speaker: domain.SpeakerGenerator, Text: "The door was already open."},
			{Speaker: domain.SpeakerUser, Text: "I went in anyway."},
			{Speaker: domain.SpeakerGenerator, Text: "It closed behind me."},
		},
		NextSpeaker: domain.SpeakerUser,
		StartedAt:   startedAt,
	}
}

func TestRestoreResumesSnapshottedSession(t *testing.T) {
	engine := &fakeEngine{lines: []string{"A resumed reply."}}
	m := newTestMachine(engine, &fakeStoryStore{})

	snap := playingSnapshot(time.Now().Add(-10*time.Second), domain.ModeSolo)
	if err := m.Restore(context.Background(), snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := m.Status(); got != domain.StatusPlaying {
		t.Fatalf("expected playing, got %q", got)
	}
	if remaining := m.RemainingTime(); remaining <= 0 || remaining > time.Minute {
		t.Fatalf("remaining time out of range: %v", remaining)
	}
	if got := len(m.Snapshot().Transcript); got != 3 {
		t.Fatalf("restored transcript: expected 3 turns, got %d", got)
	}

	// Play continues from where the snapshot left off.
	if err := m.SubmitTurn(context.Background(), "Still here."); err != nil {
		t.Fatalf("submit after restore: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(m.Snapshot().Transcript) == 5 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected 5 turns after resuming, got %d", len(m.Snapshot().Transcript))
}

func TestRestoreRejectsUnresumableSnapshots(t *testing.T) {
	m := newTestMachine(&fakeEngine{}, &fakeStoryStore{})

	if err := m.Restore(context.Background(), nil); err == nil {
		t.Error("nil snapshot must be rejected")
	}
	spent := playingSnapshot(time.Now().Add(-2*time.Minute), domain.ModeSolo)
	if err := m.Restore(context.Background(), spent); err == nil {
		t.Error("a snapshot past its play budget must be rejected")
	}
	duologue := playingSnapshot(time.Now(), domain.ModeDuologue)
	if err := m.Restore(context.Background(), duologue); err == nil {
		t.Error("duologue snapshots must be rejected")
	}
	menu := playingSnapshot(time.Now(), domain.ModeSolo)
	menu.Status = domain.StatusMenu
	if err := m.Restore(context.Background(), menu); err == nil {
		t.Error("only a playing snapshot is resumable")
	}
	if got := m.Status(); got != domain.StatusLoading {
		t.Fatalf("rejected restores must leave the machine loading, got %q", got)
	}

	if err := m.CompleteLoading(true); err != nil {
		t.Fatalf("complete loading: %v", err)
	}
	valid := playingSnapshot(time.Now(), domain.ModeSolo)
	if err := m.Restore(context.Background(), valid); err == nil {
		t.Error("restore is only legal while loading")
	}
}

func TestStartSessionRequiresMenu(t *testing.T) {
	m := newTestMachine(&fakeEngine{}, &fakeStoryStore{})

	err := m.StartSession(context.Background(), domain.SessionSettings{Genre: domain.GenreNoir})
	var ve *apperrors.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error from loading state, got %v", err)
	}
}

func TestPersonasStayFixedForSession(t *testing.T) {
	engine := &fakeEngine{lines: []string{"Opening line.", "Reply."}}
	m := newTestMachine(engine, &fakeStoryStore{})

	startPlaying(t, m, domain.SessionSettings{Genre: domain.GenreHorror})

	first := m.Snapshot().Personas
	if first.A.Name == "" || first.B.Name == "" || first.A.Name == first.B.Name {
		t.Fatalf("expected two distinct personas, got %+v", first)
	}

	if err := m.SubmitTurn(context.Background(), "Another line."); err != nil {
		t.Fatalf("submit: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(m.Snapshot().Transcript) == 3 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	if second := m.Snapshot().Personas; second != first {
		t.Errorf("personas changed mid-session: %+v -> %+v", first, second)
	}
}
