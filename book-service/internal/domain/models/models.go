package models

type Book struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	PublicationYear int    `json:"publication_year"`
	Genre           string `json:"genre"`
}

// NewBook is a book before the store assigns its id.
type NewBook struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	PublicationYear int    `json:"publication_year"`
	Genre           string `json:"genre"`
}

// BookUpdate is a merge-patch for a single book. Nil fields are left unchanged.
type BookUpdate struct {
	ID              int64   `json:"id" validate:"required"`
	Title           *string `json:"title,omitempty"`
	Author          *string `json:"author,omitempty"`
	PublicationYear *int    `json:"publication_year,omitempty"`
	Genre           *string `json:"genre,omitempty"`
}

// Apply merges the set fields of u into book.
func (u BookUpdate) Apply(book Book) Book {
	if u.Title != nil {
		book.Title = *u.Title
	}
	if u.Author != nil {
		book.Author = *u.Author
	}
	if u.PublicationYear != nil {
		book.PublicationYear = *u.PublicationYear
	}
	if u.Genre != nil {
		book.Genre = *u.Genre
	}
	return book
}

// Empty reports whether the update changes nothing.
func (u BookUpdate) Empty() bool {
	return u.Title == nil && u.Author == nil && u.PublicationYear == nil && u.Genre == nil
}

// BookFilter selects books by author or title substring. Excluded genres
// are removed from whatever the author/title match returns.
type BookFilter struct {
	Author         string
	Title          string
	ExcludedGenres []string
}

func (f BookFilter) HasSearch() bool {
	return f.Author != "" || f.Title != ""
}

type GenreBooks struct {
	Books []Book `json:"books"`
	Count int    `json:"count"`
}

type GenreGroup struct {
	Genres map[string]GenreBooks `json:"genres"`
}
