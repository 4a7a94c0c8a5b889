package storage

import (
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/azaliaz/bookly/book-service/internal/domain/models"
)

const (
	dialectPostgres = "postgres"
	tableBooks      = "books"
	colID           = "id"
	colTitle        = "title"
	colAuthor       = "author"
	colYear         = "publication_year"
	colGenre        = "genre"
)

var bookColumns = []any{colID, colTitle, colAuthor, colYear, colGenre}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func builder() goqu.DialectWrapper {
	return goqu.Dialect(dialectPostgres)
}

// containsPattern turns user input into an ILIKE pattern that matches it
// literally anywhere in the column.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// buildSelectBooks ORs the author and title conditions and ANDs the genre
// exclusion on top. Rows come back in id order.
func buildSelectBooks(filter models.BookFilter) (string, []any, error) {
	stmt := builder().
		From(tableBooks).
		Prepared(true).
		Select(bookColumns...).
		Order(goqu.C(colID).Asc())

	search := make([]exp.Expression, 0, 2)
	if filter.Author != "" {
		search = append(search, goqu.C(colAuthor).ILike(containsPattern(filter.Author)))
	}
	if filter.Title != "" {
		search = append(search, goqu.C(colTitle).ILike(containsPattern(filter.Title)))
	}
	if len(search) > 0 {
		stmt = stmt.Where(goqu.Or(search...))
	}
	if len(filter.ExcludedGenres) > 0 {
		stmt = stmt.Where(goqu.C(colGenre).NotIn(filter.ExcludedGenres))
	}

	return stmt.ToSQL()
}

func buildSelectBook(id int64, forUpdate bool) (string, []any, error) {
	stmt := builder().
		From(tableBooks).
		Prepared(true).
		Select(bookColumns...).
		Where(goqu.C(colID).Eq(id))
	if forUpdate {
		stmt = stmt.ForUpdate(exp.Wait)
	}
	return stmt.ToSQL()
}

// buildLockGenre locks the rows of a genre in id order.
func buildLockGenre(genre string) (string, []any, error) {
	return builder().
		From(tableBooks).
		Prepared(true).
		Select(colID).
		Where(goqu.C(colGenre).Eq(genre)).
		Order(goqu.C(colID).Asc()).
		ForUpdate(exp.Wait).
		ToSQL()
}

// buildLockBooks locks the given rows in id order.
func buildLockBooks(ids []int64) (string, []any, error) {
	return builder().
		From(tableBooks).
		Prepared(true).
		Select(colID).
		Where(goqu.C(colID).In(ids)).
		Order(goqu.C(colID).Asc()).
		ForUpdate(exp.Wait).
		ToSQL()
}

func buildInsertBook(book models.NewBook) (string, []any, error) {
	return builder().
		Insert(tableBooks).
		Prepared(true).
		Rows(goqu.Record{
			colTitle:  book.Title,
			colAuthor: book.Author,
			colYear:   book.PublicationYear,
			colGenre:  book.Genre,
		}).
		Returning(colID).
		ToSQL()
}

// buildUpdateBook sets only the fields present in the update.
func buildUpdateBook(u models.BookUpdate) (string, []any, error) {
	record := goqu.Record{}
	if u.Title != nil {
		record[colTitle] = *u.Title
	}
	if u.Author != nil {
		record[colAuthor] = *u.Author
	}
	if u.PublicationYear != nil {
		record[colYear] = *u.PublicationYear
	}
	if u.Genre != nil {
		record[colGenre] = *u.Genre
	}

	return builder().
		Update(tableBooks).
		Prepared(true).
		Set(record).
		Where(goqu.C(colID).Eq(u.ID)).
		Returning(bookColumns...).
		ToSQL()
}

func buildDeleteBook(id int64) (string, []any, error) {
	return builder().
		Delete(tableBooks).
		Prepared(true).
		Where(goqu.C(colID).Eq(id)).
		ToSQL()
}
