package domain

import (
	"fmt"
	"math/rand"
	"strings"
)

// Persona is a named literary style descriptor used to flavor generator
// output. The persona is never named inside the generated line itself.
type Persona struct {
	Name  string
	Style string
}

// PersonaPair holds the two personas drawn for one session.
type PersonaPair struct {
	A Persona
	B Persona
}

// personaCatalog maps each genre to its candidate personas. Two are drawn
// without replacement per session and stay fixed for its lifetime.
var personaCatalog = map[Genre][]Persona{
	GenreFantasy: {
		{Name: "Tolkien", Style: "sweeping mythic prose, invented lineages, landscapes described with reverence"},
		{Name: "Le Guin", Style: "spare anthropological clarity, magic bound by names and balance"},
		{Name: "Pratchett", Style: "footnote wit, deflated epic conventions, deeply humane absurdity"},
		{Name: "Rothfuss", Style: "musical first-person cadence, stories nested inside stories"},
		{Name: "Jemisin", Style: "second-person urgency, geological scale, grief braided with power"},
	},
	GenreNoir: {
		{Name: "Chandler", Style: "wisecracking similes, rain-slick streets, moral exhaustion under neon"},
		{Name: "Hammett", Style: "clipped objective reporting, violence delivered without comment"},
		{Name: "Highsmith", Style: "claustrophobic interiority, charm curdling into menace"},
		{Name: "Mosley", Style: "weary warmth, community detail, justice negotiated at street level"},
		{Name: "Paretsky", Style: "dogged procedural momentum, anger at institutions kept on a leash"},
	},
	GenreSciFi: {
		{Name: "Le Guin", Style: "spare anthropological clarity, societies as thought experiments"},
		{Name: "Gibson", Style: "chrome-and-static imagery, brand-name texture, laconic cool"},
		{Name: "Butler", Style: "unflinching intimacy, survival as negotiation, bodies that change"},
		{Name: "Clarke", Style: "serene engineering awe, cosmic perspective, understated wonder"},
		{Name: "Chiang", Style: "precise conceptual unfolding, emotion arriving through logic"},
	},
	GenreRomance: {
		{Name: "Austen", Style: "ironic drawing-room precision, feeling revealed through restraint"},
		{Name: "Brontë", Style: "storm-lit passion, moors and defiance, first-person fire"},
		{Name: "Rooney", Style: "flat affect hiding ache, messages reread at 2am"},
		{Name: "García Márquez", Style: "decades-long devotion, lush sensory fatalism"},
		{Name: "Heyer", Style: "sparkling period banter, comic misunderstandings resolved with grace"},
	},
	GenreHorror: {
		{Name: "Poe", Style: "feverish confession, architecture of dread, the heart heard through floorboards"},
		{Name: "Lovecraft", Style: "scholarly narrator undone, geometry gone wrong, the unnameable"},
		{Name: "Jackson", Style: "domestic unease, politeness stretched over the abyss"},
		{Name: "King", Style: "small-town vernacular warmth sharpened into sudden cruelty"},
		{Name: "Machado", Style: "fairy-tale logic turned on the body, lists and hauntings"},
	},
	GenreComedy: {
		{Name: "Wodehouse", Style: "immaculate farce machinery, similes polished to a shine"},
		{Name: "Pratchett", Style: "footnote wit, deflated epic conventions, deeply humane absurdity"},
		{Name: "Adams", Style: "bureaucratic cosmic absurdity, digressions that land the joke"},
		{Name: "Sedaris", Style: "self-deprecating confession, family anecdote escalated to disaster"},
		{Name: "Fielding", Style: "diary-entry panic, calorie counts and romantic catastrophe"},
	},
}

// PersonasFor returns the catalog entries for a genre.
func PersonasFor(genre Genre) []Persona {
	return personaCatalog[genre]
}

// DrawPair samples two distinct personas for the genre using the supplied
// source of randomness.
func DrawPair(rng *rand.Rand, genre Genre) (PersonaPair, error) {
	candidates := personaCatalog[genre]
	if len(candidates) < 2 {
		return PersonaPair{}, fmt.Errorf("genre %q has fewer than two personas", genre)
	}

	first := rng.Intn(len(candidates))
	second := rng.Intn(len(candidates) - 1)
	if second >= first {
		second++
	}

	return PersonaPair{A: candidates[first], B: candidates[second]}, nil
}

// SerializeCatalog renders the full persona catalog as "Name: style" lines,
// the form the style-match analysis prompt consumes.
func SerializeCatalog() string {
	var b strings.Builder
	seen := make(map[string]struct{})
	for _, genre := range AllGenres {
		for _, p := range personaCatalog[genre] {
			if _, dup := seen[p.Name]; dup {
				continue
			}
			seen[p.Name] = struct{}{}
			fmt.Fprintf(&b, "%s: %s\n", p.Name, p.Style)
		}
	}
	return b.String()
}
