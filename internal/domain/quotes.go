package domain

// quoteTable maps persona names to an attributed literary quote shown next to
// the winning style match. Missing entries are not an error; the banner is
// simply left empty.
var quoteTable = map[string]string{
	"Tolkien":        "Not all those who wander are lost.",
	"Le Guin":        "It is good to have an end to journey toward; but it is the journey that matters, in the end.",
	"Pratchett":      "The pen is mightier than the sword if the sword is very short, and the pen is very sharp.",
	"Jemisin":        "When we say 'the world has ended,' it's usually a lie, because the planet is just fine.",
	"Chandler":       "Down these mean streets a man must go who is not himself mean.",
	"Hammett":        "The cheaper the crook, the gaudier the patter.",
	"Highsmith":      "Art essentially has nothing to do with morality, convention or moralizing.",
	"Gibson":         "The sky above the port was the color of television, tuned to a dead channel.",
	"Butler":         "All that you touch you Change. All that you Change Changes you.",
	"Clarke":         "Any sufficiently advanced technology is indistinguishable from magic.",
	"Austen":         "It is a truth universally acknowledged, that a single man in possession of a good fortune, must be in want of a wife.",
	"Brontë":         "I am no bird; and no net ensnares me.",
	"García Márquez": "It is not true that people stop pursuing dreams because they grow old, they grow old because they stop pursuing dreams.",
	"Poe":            "All that we see or seem is but a dream within a dream.",
	"Lovecraft":      "The oldest and strongest emotion of mankind is fear.",
	"Jackson":        "No live organism can continue for long to exist sanely under conditions of absolute reality.",
	"King":           "Monsters are real, and ghosts are real too. They live inside us.",
	"Wodehouse":      "It was my Uncle George who discovered that alcohol was a food well in advance of modern medical thought.",
	"Adams":          "Time is an illusion. Lunchtime doubly so.",
}

// QuoteFor looks up the attributed quote for a persona name.
func QuoteFor(personaName string) (string, bool) {
	quote, ok := quoteTable[personaName]
	return quote, ok
}
