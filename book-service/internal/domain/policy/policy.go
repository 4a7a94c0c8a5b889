// Package policy holds the genre rules checked before writes and applied
// to every read.
package policy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/azaliaz/bookly/book-service/internal/domain/models"
)

var ErrGenreBlocked = errors.New("genre is blocked for writes")

// GenreError names the genre that was rejected. Change is set when the
// genre came from an update rather than a new book.
type GenreError struct {
	Genre  string
	Change bool
}

func (e *GenreError) Error() string {
	if e.Change {
		return fmt.Sprintf("Cannot change genre of book to %s", e.Genre)
	}
	return fmt.Sprintf("Cannot create book in the genre %s", e.Genre)
}

func (e *GenreError) Unwrap() error {
	return ErrGenreBlocked
}

type Config struct {
	BlockedForWrite    []string
	ExcludedFromSearch []string
	MaskedForDisplay   []string
}

func DefaultConfig() Config {
	return Config{
		BlockedForWrite:    []string{"Horror"},
		ExcludedFromSearch: []string{"18+"},
		MaskedForDisplay:   []string{"18+"},
	}
}

// Policy is immutable once built and safe for concurrent use.
type Policy struct {
	blocked  map[string]struct{}
	excluded map[string]struct{}
	masked   map[string]struct{}
}

func New(cfg Config) *Policy {
	return &Policy{
		blocked:  toSet(cfg.BlockedForWrite),
		excluded: toSet(cfg.ExcludedFromSearch),
		masked:   toSet(cfg.MaskedForDisplay),
	}
}

func (p *Policy) IsWriteBlocked(genre string) bool {
	_, ok := p.blocked[genre]
	return ok
}

func (p *Policy) IsSearchExcluded(genre string) bool {
	_, ok := p.excluded[genre]
	return ok
}

func (p *Policy) IsMasked(genre string) bool {
	_, ok := p.masked[genre]
	return ok
}

// ExcludedGenres returns the search exclusions in sorted order.
func (p *Policy) ExcludedGenres() []string {
	genres := make([]string, 0, len(p.excluded))
	for g := range p.excluded {
		genres = append(genres, g)
	}
	sort.Strings(genres)
	return genres
}

func (p *Policy) CheckNewBook(book models.NewBook) error {
	if p.IsWriteBlocked(book.Genre) {
		return &GenreError{Genre: book.Genre}
	}
	return nil
}

// CheckUpdates returns an error for the first update moving a book into a
// blocked genre. Updates that leave the genre untouched always pass.
func (p *Policy) CheckUpdates(updates []models.BookUpdate) error {
	for _, u := range updates {
		if u.Genre != nil && p.IsWriteBlocked(*u.Genre) {
			return &GenreError{Genre: *u.Genre, Change: true}
		}
	}
	return nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
