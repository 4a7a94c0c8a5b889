package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azaliaz/bookly/book-service/internal/domain/models"
	storerrros "github.com/azaliaz/bookly/book-service/internal/storage/errors"
)

const testDSNEnv = "TEST_DB_DSN"

const createBooksTable = `CREATE TABLE IF NOT EXISTS books (
    id               BIGSERIAL PRIMARY KEY,
    title            TEXT    NOT NULL,
    author           TEXT    NOT NULL,
    publication_year INTEGER NOT NULL,
    genre            TEXT    NOT NULL
)`

// openTestDB connects with the given driver and empties the books table.
func openTestDB(t *testing.T, driver string) *DBStorage {
	t.Helper()

	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set, skipping postgres tests", testDSNEnv)
	}

	ctx := context.Background()
	dbs, err := Open(ctx, driver, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbs.Close() })

	tx, err := dbs.db.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, createBooksTable)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, "TRUNCATE books RESTART IDENTITY")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	return dbs
}

func seedDB(t *testing.T, dbs *DBStorage, books []models.NewBook) []models.Book {
	t.Helper()

	saved := make([]models.Book, 0, len(books))
	for _, b := range books {
		book, err := dbs.SaveBook(context.Background(), b)
		require.NoError(t, err)
		saved = append(saved, book)
	}
	return saved
}

func TestDBStorage(t *testing.T) {
	for _, driver := range []string{DriverPGX, DriverSQLX} {
		t.Run(driver, func(t *testing.T) {
			testDBStorage(t, driver)
		})
	}
}

func testDBStorage(t *testing.T, driver string) {
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		dbs := openTestDB(t, driver)
		saved := seedDB(t, dbs, fixtureBooks()[:1])

		got, err := dbs.GetBook(ctx, saved[0].ID)
		require.NoError(t, err)
		assert.Equal(t, saved[0], got)

		_, err = dbs.GetBook(ctx, saved[0].ID+100)
		assert.ErrorIs(t, err, storerrros.ErrBookNoExist)
	})

	t.Run("filters", func(t *testing.T) {
		dbs := openTestDB(t, driver)
		seedDB(t, dbs, fixtureBooks())

		all, err := dbs.GetBooks(ctx, models.BookFilter{})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3, 4}, ids(all))

		got, err := dbs.GetBooks(ctx, models.BookFilter{Author: "HERBERT", Title: "misery"})
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 3}, ids(got))

		got, err = dbs.GetBooks(ctx, models.BookFilter{Author: "king", Title: "king", ExcludedGenres: []string{"18+"}})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, ids(got))

		got, err = dbs.GetBooks(ctx, models.BookFilter{Title: "%"})
		require.NoError(t, err)
		assert.Empty(t, got, "wildcards in input match literally")
	})

	t.Run("update merges and rolls back", func(t *testing.T) {
		dbs := openTestDB(t, driver)
		seedDB(t, dbs, fixtureBooks())

		got, err := dbs.UpdateBooks(ctx, []models.BookUpdate{
			{ID: 3, Title: strPtr("Dune Messiah")},
			{ID: 1},
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, models.Book{ID: 3, Title: "Dune Messiah", Author: "Frank Herbert", PublicationYear: 1965, Genre: "Science Fiction"}, got[0])
		assert.Equal(t, "The Shining", got[1].Title)

		before, err := dbs.GetBooks(ctx, models.BookFilter{})
		require.NoError(t, err)

		_, err = dbs.UpdateBooks(ctx, []models.BookUpdate{
			{ID: 1, Title: strPtr("changed")},
			{ID: 99, Title: strPtr("missing")},
		})
		assert.ErrorIs(t, err, storerrros.ErrBookNoExist)

		after, err := dbs.GetBooks(ctx, models.BookFilter{})
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("delete guards last in genre", func(t *testing.T) {
		dbs := openTestDB(t, driver)
		seedDB(t, dbs, []models.NewBook{
			{Title: "A", Author: "a", PublicationYear: 2000, Genre: "X"},
			{Title: "B", Author: "b", PublicationYear: 2000, Genre: "X"},
			{Title: "C", Author: "c", PublicationYear: 2000, Genre: "Y"},
		})

		assert.ErrorIs(t, dbs.DeleteBook(ctx, 3), storerrros.ErrLastInGenre)
		require.NoError(t, dbs.DeleteBook(ctx, 1))
		assert.ErrorIs(t, dbs.DeleteBook(ctx, 2), storerrros.ErrLastInGenre)
		assert.ErrorIs(t, dbs.DeleteBook(ctx, 1), storerrros.ErrBookNoExist)

		left, err := dbs.GetBooks(ctx, models.BookFilter{})
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 3}, ids(left))
	})

	t.Run("reversed batches and deletes run together", func(t *testing.T) {
		dbs := openTestDB(t, driver)
		seed := make([]models.NewBook, 0, 6)
		for i := 0; i < 6; i++ {
			seed = append(seed, models.NewBook{Title: "t", Author: "a", PublicationYear: 2000, Genre: "X"})
		}
		saved := seedDB(t, dbs, seed)

		errs := make(chan error, 2*len(saved))
		var wg sync.WaitGroup
		for i := range saved {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				batch := make([]models.BookUpdate, 0, len(saved))
				for j := len(saved) - 1; j >= 0; j-- {
					batch = append(batch, models.BookUpdate{ID: saved[j].ID, Author: strPtr("b")})
				}
				if _, err := dbs.UpdateBooks(ctx, batch); err != nil && !errors.Is(err, storerrros.ErrBookNoExist) {
					errs <- err
				}
			}(i)
			go func(id int64) {
				defer wg.Done()
				err := dbs.DeleteBook(ctx, id)
				if err != nil && !errors.Is(err, storerrros.ErrLastInGenre) {
					errs <- err
				}
			}(saved[i].ID)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}
		left, err := dbs.GetBooks(ctx, models.BookFilter{})
		require.NoError(t, err)
		assert.Len(t, left, 1)
	})

	t.Run("concurrent deletes keep one book", func(t *testing.T) {
		dbs := openTestDB(t, driver)
		seed := make([]models.NewBook, 0, 10)
		for i := 0; i < 10; i++ {
			seed = append(seed, models.NewBook{Title: "t", Author: "a", PublicationYear: 2000, Genre: "X"})
		}
		saved := seedDB(t, dbs, seed)

		var wg sync.WaitGroup
		for _, b := range saved {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				_ = dbs.DeleteBook(ctx, id)
			}(b.ID)
		}
		wg.Wait()

		left, err := dbs.GetBooks(ctx, models.BookFilter{})
		require.NoError(t, err)
		assert.Len(t, left, 1)
	})
}

func TestOpen_unknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	assert.Error(t, err)
}
