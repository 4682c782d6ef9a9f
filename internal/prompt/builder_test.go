package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/storyduet/storyduet-go/internal/constants"
	"github.com/storyduet/storyduet-go/internal/domain"
)

func TestWordBandOpeningUsesFixedRange(t *testing.T) {
	min, max := WordBand("ignored input", true)
	if min != constants.TurnConfig.OpeningMinWords || max != constants.TurnConfig.OpeningMaxWords {
		t.Fatalf("opening band: got %d..%d", min, max)
	}
}

func TestWordBandMirrorsInputLength(t *testing.T) {
	tests := []struct {
		name    string
		words   int
		wantMin int
		wantMax int
	}{
		{name: "twenty words", words: 20, wantMin: 17, wantMax: 23},
		{name: "ten words", words: 10, wantMin: 8, wantMax: 12},
		{name: "single word", words: 1, wantMin: 1, wantMax: 1},
		{name: "two words", words: 2, wantMin: 1, wantMax: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := strings.TrimSpace(strings.Repeat("word ", tt.words))
			min, max := WordBand(line, false)
			if min != tt.wantMin || max != tt.wantMax {
				t.Errorf("band for %d words: got %d..%d, want %d..%d",
					tt.words, min, max, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestWordBandEmptyInputFallsBackToOpeningRange(t *testing.T) {
	min, max := WordBand("   ", false)
	if min != constants.TurnConfig.OpeningMinWords || max != constants.TurnConfig.OpeningMaxWords {
		t.Fatalf("empty input band: got %d..%d", min, max)
	}
}

func TestBuildTurnPromptNeverLeaksBandIntoValidation(t *testing.T) {
	req := domain.GenerationRequest{
		Genre:       domain.GenreNoir,
		Duration:    3 * time.Minute,
		LatestInput: "She lit the lamp twice.",
		PersonaA:    domain.Persona{Name: "Chandler", Style: "wisecracking similes"},
		PersonaB:    domain.Persona{Name: "Highsmith", Style: "claustrophobic interiority"},
		MinWords:    4,
		MaxWords:    6,
	}

	p := BuildTurnPrompt(req)

	for _, want := range []string{
		"Noir",
		"Chandler",
		"Highsmith",
		`She lit the lamp twice.`,
		"4 to 6 words",
		`{"line"`,
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildTurnPromptOpeningVariant(t *testing.T) {
	req := domain.GenerationRequest{
		Genre:    domain.GenreFantasy,
		Duration: 90 * time.Second,
		PersonaA: domain.Persona{Name: "Tolkien", Style: "sweeping mythic prose"},
		PersonaB: domain.Persona{Name: "Le Guin", Style: "spare clarity"},
		Opening:  true,
		MinWords: 12,
		MaxWords: 20,
	}

	p := BuildTurnPrompt(req)

	if !strings.Contains(p, "opening line") {
		t.Error("opening prompt must ask for the opening line")
	}
	if !strings.Contains(p, "the story has not started yet") {
		t.Error("opening prompt must mark the empty history")
	}
	// Sub-minute durations round up rather than advertising zero minutes.
	if strings.Contains(p, "0 minutes") {
		t.Error("duration must never render as zero minutes")
	}
}

func TestBuildTurnPromptDuologueChanneling(t *testing.T) {
	req := domain.GenerationRequest{
		Genre:       domain.GenreSciFi,
		Duration:    2 * time.Minute,
		LatestInput: "The station hummed back.",
		PersonaA:    domain.Persona{Name: "Gibson", Style: "chrome-and-static imagery"},
		PersonaB:    domain.Persona{Name: "Chiang", Style: "precise conceptual unfolding"},
		SpeakAs:     "Chiang",
		MinWords:    3,
		MaxWords:    5,
	}

	p := BuildTurnPrompt(req)

	if !strings.Contains(p, "channel Chiang's sensibility") {
		t.Error("duologue prompt must steer toward the speaking persona")
	}
}
