package domain

import "time"

// GenerationRequest is the structured context passed to the content
// generator for one line. Constructed fresh per call, never mutated after.
type GenerationRequest struct {
	Genre       Genre
	Duration    time.Duration
	LatestInput string
	History     []Turn
	PersonaA    Persona
	PersonaB    Persona

	// Opening marks the generator-authored first line, which targets a fixed
	// short word range instead of mirroring.
	Opening bool

	// SpeakAs names the persona the generator embodies in duologue mode.
	// Empty in solo mode.
	SpeakAs string

	// MinWords/MaxWords is the advisory word band embedded in the prompt.
	// Never enforced against the output.
	MinWords int
	MaxWords int
}
