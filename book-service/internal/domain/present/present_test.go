package present

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azaliaz/bookly/book-service/internal/domain/consts"
	"github.com/azaliaz/bookly/book-service/internal/domain/models"
	"github.com/azaliaz/bookly/book-service/internal/domain/policy"
)

var testBooks = []models.Book{
	{ID: 1, Title: "Book 1", Author: "Author 1", PublicationYear: 2020, Genre: "Genre 1"},
	{ID: 2, Title: "Book 2", Author: "Author 2", PublicationYear: 2021, Genre: "Genre 2"},
	{ID: 3, Title: "Book 3", Author: "Author 3", PublicationYear: 2022, Genre: "Genre 1"},
	{ID: 4, Title: "Book 4", Author: "Author 4", PublicationYear: 2023, Genre: "18+"},
}

func TestMaskTitle(t *testing.T) {
	p := policy.New(policy.DefaultConfig())

	t.Run("masked genre", func(t *testing.T) {
		got := MaskTitle(p, testBooks[3])
		assert.Equal(t, consts.MaskedTitle, got.Title)
		assert.Len(t, got.Title, 10)
		assert.Equal(t, testBooks[3].Author, got.Author)
		assert.Equal(t, "Book 4", testBooks[3].Title, "source book must not change")
	})

	t.Run("other genre", func(t *testing.T) {
		assert.Equal(t, testBooks[0], MaskTitle(p, testBooks[0]))
	})
}

func TestMaskAll(t *testing.T) {
	p := policy.New(policy.Config{MaskedForDisplay: []string{"Genre 1"}})

	got := MaskAll(p, testBooks)
	require.Len(t, got, len(testBooks))
	for i, book := range got {
		assert.Equal(t, testBooks[i].ID, book.ID, "order preserved")
		if book.Genre == "Genre 1" {
			assert.Equal(t, consts.MaskedTitle, book.Title)
		} else {
			assert.Equal(t, testBooks[i].Title, book.Title)
		}
	}
	assert.Equal(t, "Book 1", testBooks[0].Title)

	assert.Empty(t, MaskAll(p, nil))
}

func TestGroupByGenre(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		got := GroupByGenre(nil)
		assert.NotNil(t, got.Genres)
		assert.Empty(t, got.Genres)
	})

	t.Run("grouped", func(t *testing.T) {
		got := GroupByGenre(testBooks)
		require.Len(t, got.Genres, 3)

		g1 := got.Genres["Genre 1"]
		assert.Equal(t, 2, g1.Count)
		assert.Equal(t, []models.Book{testBooks[0], testBooks[2]}, g1.Books)

		total := 0
		for _, group := range got.Genres {
			assert.Equal(t, len(group.Books), group.Count)
			total += group.Count
		}
		assert.Equal(t, len(testBooks), total)
	})
}
