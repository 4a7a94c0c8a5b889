package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/azaliaz/bookly/book-service/internal/domain/models"
	"github.com/azaliaz/bookly/book-service/internal/logger"
	storerrros "github.com/azaliaz/bookly/book-service/internal/storage/errors"
)

// MemStorage keeps books in a map. Every operation holds the lock for its
// whole duration, which gives it the same atomicity as the database backend.
type MemStorage struct {
	mu       sync.RWMutex
	bookStor map[int64]models.Book
	nextID   int64
}

func New() *MemStorage {
	return &MemStorage{
		bookStor: make(map[int64]models.Book),
		nextID:   1,
	}
}

// NewSeeded returns a MemStorage holding the given books under fresh ids.
func NewSeeded(seed []models.NewBook) *MemStorage {
	ms := New()
	for _, book := range seed {
		ms.insert(book)
	}
	return ms
}

func (ms *MemStorage) Close() error {
	return nil
}

func (ms *MemStorage) SaveBook(_ context.Context, book models.NewBook) (models.Book, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return ms.insert(book), nil
}

func (ms *MemStorage) insert(book models.NewBook) models.Book {
	saved := models.Book{
		ID:              ms.nextID,
		Title:           book.Title,
		Author:          book.Author,
		PublicationYear: book.PublicationYear,
		Genre:           book.Genre,
	}
	ms.nextID++
	ms.bookStor[saved.ID] = saved
	return saved
}

// GetBooks returns matching books in ascending id order.
func (ms *MemStorage) GetBooks(_ context.Context, filter models.BookFilter) ([]models.Book, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	author := strings.ToLower(filter.Author)
	title := strings.ToLower(filter.Title)
	excluded := make(map[string]struct{}, len(filter.ExcludedGenres))
	for _, g := range filter.ExcludedGenres {
		excluded[g] = struct{}{}
	}

	result := make([]models.Book, 0, len(ms.bookStor))
	for _, book := range ms.bookStor {
		if filter.HasSearch() {
			byAuthor := author != "" && strings.Contains(strings.ToLower(book.Author), author)
			byTitle := title != "" && strings.Contains(strings.ToLower(book.Title), title)
			if !byAuthor && !byTitle {
				continue
			}
		}
		if _, skip := excluded[book.Genre]; skip {
			continue
		}
		result = append(result, book)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (ms *MemStorage) GetBook(_ context.Context, id int64) (models.Book, error) {
	log := logger.Get()
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	book, ok := ms.bookStor[id]
	if !ok {
		log.Debug().Int64("id", id).Msg("book not found")
		return models.Book{}, storerrros.NotFound(id)
	}
	return book, nil
}

// UpdateBooks stages every change and only writes them back once the whole
// batch has been resolved.
func (ms *MemStorage) UpdateBooks(_ context.Context, updates []models.BookUpdate) ([]models.Book, error) {
	log := logger.Get()
	ms.mu.Lock()
	defer ms.mu.Unlock()

	staged := make(map[int64]models.Book, len(updates))
	updated := make([]models.Book, 0, len(updates))
	for _, u := range updates {
		current, ok := staged[u.ID]
		if !ok {
			current, ok = ms.bookStor[u.ID]
		}
		if !ok {
			log.Warn().Int64("id", u.ID).Msg("update batch rolled back")
			return nil, storerrros.NotFound(u.ID)
		}
		next := u.Apply(current)
		staged[u.ID] = next
		updated = append(updated, next)
	}

	for id, book := range staged {
		ms.bookStor[id] = book
	}
	return updated, nil
}

func (ms *MemStorage) DeleteBook(_ context.Context, id int64) error {
	log := logger.Get()
	ms.mu.Lock()
	defer ms.mu.Unlock()

	book, exists := ms.bookStor[id]
	if !exists {
		log.Warn().Int64("id", id).Msg("book not found")
		return storerrros.NotFound(id)
	}

	count := 0
	for _, b := range ms.bookStor {
		if b.Genre == book.Genre {
			count++
		}
	}
	if count == 1 {
		log.Warn().Int64("id", id).Str("genre", book.Genre).Msg("last book in genre")
		return storerrros.LastInGenre(id)
	}

	delete(ms.bookStor, id)
	log.Info().Int64("id", id).Msg("book deleted successfully")
	return nil
}
