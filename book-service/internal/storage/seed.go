package storage

import "github.com/azaliaz/bookly/book-service/internal/domain/models"

// SeedData returns example books to pre-populate the in-memory storage.
func SeedData() []models.NewBook {
	return []models.NewBook{
		{Title: "The Go Programming Language", Author: "Alan A. A. Donovan", PublicationYear: 2015, Genre: "Programming"},
		{Title: "Concurrency in Go", Author: "Katherine Cox-Buday", PublicationYear: 2017, Genre: "Programming"},
		{Title: "Dune", Author: "Frank Herbert", PublicationYear: 1965, Genre: "Science Fiction"},
		{Title: "Hyperion", Author: "Dan Simmons", PublicationYear: 1989, Genre: "Science Fiction"},
		{Title: "The Hobbit", Author: "J. R. R. Tolkien", PublicationYear: 1937, Genre: "Fantasy"},
	}
}
