package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azaliaz/bookly/book-service/internal/domain/models"
)

func strPtr(s string) *string { return &s }

func TestPolicy_defaults(t *testing.T) {
	p := New(DefaultConfig())

	assert.True(t, p.IsWriteBlocked("Horror"))
	assert.False(t, p.IsWriteBlocked("horror"), "matching is case sensitive")
	assert.False(t, p.IsWriteBlocked("Fantasy"))

	assert.True(t, p.IsSearchExcluded("18+"))
	assert.False(t, p.IsSearchExcluded("Horror"))

	assert.True(t, p.IsMasked("18+"))
	assert.False(t, p.IsMasked("Fantasy"))
}

func TestPolicy_emptyConfig(t *testing.T) {
	p := New(Config{})

	assert.False(t, p.IsWriteBlocked("Horror"))
	assert.False(t, p.IsSearchExcluded("18+"))
	assert.False(t, p.IsMasked("18+"))
	assert.Empty(t, p.ExcludedGenres())
}

func TestPolicy_ExcludedGenres(t *testing.T) {
	p := New(Config{ExcludedFromSearch: []string{"b", "a", "c", "a"}})
	assert.Equal(t, []string{"a", "b", "c"}, p.ExcludedGenres())
}

func TestPolicy_CheckNewBook(t *testing.T) {
	p := New(DefaultConfig())

	t.Run("allowed", func(t *testing.T) {
		assert.NoError(t, p.CheckNewBook(models.NewBook{Title: "Dune", Author: "Herbert", Genre: "Sci-Fi"}))
	})

	t.Run("blocked", func(t *testing.T) {
		err := p.CheckNewBook(models.NewBook{Title: "It", Author: "King", Genre: "Horror"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrGenreBlocked))

		var genreErr *GenreError
		require.True(t, errors.As(err, &genreErr))
		assert.Equal(t, "Horror", genreErr.Genre)
		assert.Equal(t, "Cannot create book in the genre Horror", err.Error())
	})
}

func TestPolicy_CheckUpdates(t *testing.T) {
	p := New(DefaultConfig())

	t.Run("no genre change", func(t *testing.T) {
		err := p.CheckUpdates([]models.BookUpdate{{ID: 1, Title: strPtr("New title")}})
		assert.NoError(t, err)
	})

	t.Run("allowed genre", func(t *testing.T) {
		err := p.CheckUpdates([]models.BookUpdate{{ID: 1, Genre: strPtr("Drama")}})
		assert.NoError(t, err)
	})

	t.Run("blocked genre anywhere in batch", func(t *testing.T) {
		err := p.CheckUpdates([]models.BookUpdate{
			{ID: 1, Genre: strPtr("Drama")},
			{ID: 2, Genre: strPtr("Horror")},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrGenreBlocked)
		assert.Equal(t, "Cannot change genre of book to Horror", err.Error())
	})

	t.Run("empty batch", func(t *testing.T) {
		assert.NoError(t, p.CheckUpdates(nil))
	})
}
