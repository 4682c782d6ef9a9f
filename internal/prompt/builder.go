package prompt

import (
	"fmt"
	"strings"

	"github.com/storyduet/storyduet-go/internal/constants"
	"github.com/storyduet/storyduet-go/internal/domain"
	"github.com/storyduet/storyduet-go/internal/util"
)

// WordBand computes the advisory word range for a mirrored turn from the
// latest human line. Opening turns use the fixed short range instead.
func WordBand(latestUserLine string, opening bool) (int, int) {
	if opening {
		return constants.TurnConfig.OpeningMinWords, constants.TurnConfig.OpeningMaxWords
	}

	count := util.WordCount(latestUserLine)
	if count == 0 {
		return constants.TurnConfig.OpeningMinWords, constants.TurnConfig.OpeningMaxWords
	}

	tol := constants.TurnConfig.MirrorTolerance
	min := int(float64(count) * (1 - tol))
	max := int(float64(count)*(1+tol) + 0.5)
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return min, max
}

func formatHistory(history []domain.Turn) string {
	if len(history) == 0 {
		return "(the story has not started yet)"
	}
	lines := make([]string, len(history))
	for i, t := range history {
		label := "Partner"
		if t.Speaker == domain.SpeakerUser {
			label = "Writer"
		}
		if t.PersonaLabel != "" {
			label = t.PersonaLabel
		}
		lines[i] = fmt.Sprintf("%s: %s", label, t.Text)
	}
	return strings.Join(lines, "\n")
}

// BuildTurnPrompt renders the content-generator prompt for one story line.
// The word band is steering text only; the engine never checks the output
// against it.
func BuildTurnPrompt(req domain.GenerationRequest) string {
	minutes := int(req.Duration.Minutes())
	if minutes < 1 {
		minutes = 1
	}

	var b strings.Builder

	fmt.Fprintf(&b, `You are co-writing a %s story with a human partner in a timed session of about %d minutes.

Blend the voices of two literary styles without ever naming them:
- %s: %s
- %s: %s

Story so far:
%s
`,
		req.Genre.DisplayName(), minutes,
		req.PersonaA.Name, req.PersonaA.Style,
		req.PersonaB.Name, req.PersonaB.Style,
		formatHistory(req.History),
	)

	if req.Opening {
		fmt.Fprintf(&b, `
Write the opening line of the story. It must invite the partner to continue and be %d to %d words long.`,
			req.MinWords, req.MaxWords)
	} else {
		fmt.Fprintf(&b, `
The partner just wrote: "%s"

Write the single next line of the story. Match the partner's energy: your line should be roughly %d to %d words, close to the length of theirs. Continue the scene, never summarize it.`,
			req.LatestInput, req.MinWords, req.MaxWords)
	}

	if req.SpeakAs != "" {
		fmt.Fprintf(&b, `
For this line, channel %s's sensibility more strongly than the other voice, but still do not name any author.`, req.SpeakAs)
	}

	b.WriteString(`

Respond with JSON only: {"line": "<the story line>"}`)

	return b.String()
}
