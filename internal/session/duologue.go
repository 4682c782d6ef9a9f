package session

import (
	"context"
	"time"

	"github.com/storyduet/storyduet-go/internal/constants"
	"github.com/storyduet/storyduet-go/internal/domain"
	"go.uber.org/zap"
)

// runDuologue drives the automated mode: both speakers are generator-owned
// personas alternating on a fixed cadence until the session ends or the
// turn budget runs out. The human cannot submit while this loop is live.
func (m *Machine) runDuologue(ctx context.Context, epoch uint64, stop chan struct{}) {
	ticker := time.NewTicker(m.pacing)
	defer ticker.Stop()

	for turns := 0; turns < constants.DuologueConfig.MaxTurns; turns++ {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if m.epoch != epoch || m.session.Status != domain.StatusPlaying {
			m.mu.Unlock()
			return
		}

		// The next speaker is decided by inspecting the last turn's label.
		speakAs := m.session.Personas.A.Name
		if last := m.session.LastTurn(); last != nil && last.PersonaLabel == m.session.Personas.A.Name {
			speakAs = m.session.Personas.B.Name
		}
		req := m.buildRequestLocked(false, speakAs)
		m.mu.Unlock()

		line, err := m.engine.TakeTurn(ctx, req)

		m.mu.Lock()
		if m.epoch != epoch || m.session.Status != domain.StatusPlaying {
			m.mu.Unlock()
			m.logger.Debug("Stale duologue turn discarded")
			return
		}

		if err != nil {
			m.mu.Unlock()
			m.logger.Warn("Duologue turn failed, skipping beat",
				zap.String("persona", speakAs),
				zap.Error(err),
			)
			m.emit(Event{Kind: EventNotice, Notice: "The conversation stumbled for a beat."})
			continue
		}

		turn := domain.Turn{
			Speaker:      domain.SpeakerGenerator,
			Text:         line,
			PersonaLabel: speakAs,
		}
		m.session.Append(turn)
		m.session.NextSpeaker = domain.SpeakerGenerator
		m.mu.Unlock()

		m.emit(Event{Kind: EventTurn, Turn: &turn})
	}

	m.logger.Info("Duologue turn budget reached, ending session")
	if err := m.EndSession(ctx); err != nil {
		m.logger.Debug("Duologue end skipped", zap.Error(err))
	}
}
