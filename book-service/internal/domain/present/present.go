// Package present shapes stored books for output. Nothing here touches the store.
package present

import (
	"github.com/azaliaz/bookly/book-service/internal/domain/consts"
	"github.com/azaliaz/bookly/book-service/internal/domain/models"
)

type Masker interface {
	IsMasked(genre string) bool
}

func MaskTitle(m Masker, book models.Book) models.Book {
	if m.IsMasked(book.Genre) {
		book.Title = consts.MaskedTitle
	}
	return book
}

// MaskAll returns a new slice; the input is left as is.
func MaskAll(m Masker, books []models.Book) []models.Book {
	masked := make([]models.Book, len(books))
	for i, book := range books {
		masked[i] = MaskTitle(m, book)
	}
	return masked
}

// GroupByGenre keeps the input order inside every genre. Genres without
// books never appear.
func GroupByGenre(books []models.Book) models.GenreGroup {
	genres := make(map[string]models.GenreBooks)
	for _, book := range books {
		group := genres[book.Genre]
		group.Books = append(group.Books, book)
		group.Count = len(group.Books)
		genres[book.Genre] = group
	}
	return models.GenreGroup{Genres: genres}
}
