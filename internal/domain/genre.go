package domain

import "fmt"

// Genre is the fixed narrative style selectable per session.
type Genre string

const (
	GenreFantasy Genre = "fantasy"
	GenreNoir    Genre = "noir"
	GenreSciFi   Genre = "scifi"
	GenreRomance Genre = "romance"
	GenreHorror  Genre = "horror"
	GenreComedy  Genre = "comedy"
)

// AllGenres lists every selectable genre in menu order.
var AllGenres = []Genre{
	GenreFantasy,
	GenreNoir,
	GenreSciFi,
	GenreRomance,
	GenreHorror,
	GenreComedy,
}

// DisplayName returns the user-facing genre label.
func (g Genre) DisplayName() string {
	switch g {
	case GenreFantasy:
		return "Fantasy"
	case GenreNoir:
		return "Noir"
	case GenreSciFi:
		return "Science Fiction"
	case GenreRomance:
		return "Romance"
	case GenreHorror:
		return "Horror"
	case GenreComedy:
		return "Comedy"
	default:
		return string(g)
	}
}

// ParseGenre validates a raw genre value.
func ParseGenre(raw string) (Genre, error) {
	g := Genre(raw)
	switch g {
	case GenreFantasy, GenreNoir, GenreSciFi, GenreRomance, GenreHorror, GenreComedy:
		return g, nil
	}
	return "", fmt.Errorf("unknown genre: %q", raw)
}
