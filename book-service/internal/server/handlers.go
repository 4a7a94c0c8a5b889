package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/azaliaz/bookly/book-service/internal/domain/models"
	"github.com/azaliaz/bookly/book-service/internal/domain/policy"
	"github.com/azaliaz/bookly/book-service/internal/domain/present"
	"github.com/azaliaz/bookly/book-service/internal/events"
	"github.com/azaliaz/bookly/book-service/internal/logger"
	storerrros "github.com/azaliaz/bookly/book-service/internal/storage/errors"
)

// newBookRequest is the create body. All four fields must be present.
type newBookRequest struct {
	Title           string `json:"title" validate:"required"`
	Author          string `json:"author" validate:"required"`
	PublicationYear *int   `json:"publication_year" validate:"required"`
	Genre           string `json:"genre" validate:"required"`
}

func (r newBookRequest) toNewBook() models.NewBook {
	book := models.NewBook{Title: r.Title, Author: r.Author, Genre: r.Genre}
	if r.PublicationYear != nil {
		book.PublicationYear = *r.PublicationYear
	}
	return book
}

// searchFilter reads the author and title query parameters. Search
// exclusions only apply when one of them is given.
func (s *Server) searchFilter(ctx *gin.Context) models.BookFilter {
	filter := models.BookFilter{
		Author: ctx.Query("author"),
		Title:  ctx.Query("title"),
	}
	if filter.HasSearch() {
		filter.ExcludedGenres = s.Policy.ExcludedGenres()
	}
	return filter
}

func (s *Server) AllBooks(ctx *gin.Context) {
	log := logger.Get()
	books, err := s.Storage.GetBooks(ctx.Request.Context(), s.searchFilter(ctx))
	if err != nil {
		log.Error().Err(err).Msg("get books failed")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get books"})
		return
	}
	ctx.JSON(http.StatusOK, present.MaskAll(s.Policy, books))
}

func (s *Server) BooksByGenre(ctx *gin.Context) {
	log := logger.Get()
	books, err := s.Storage.GetBooks(ctx.Request.Context(), s.searchFilter(ctx))
	if err != nil {
		log.Error().Err(err).Msg("get books failed")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get books"})
		return
	}
	ctx.JSON(http.StatusOK, present.GroupByGenre(present.MaskAll(s.Policy, books)))
}

func (s *Server) BookInfo(ctx *gin.Context) {
	log := logger.Get()
	id, ok := bookID(ctx)
	if !ok {
		return
	}
	book, err := s.Storage.GetBook(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storerrros.ErrBookNoExist) {
			log.Info().Int64("id", id).Msg("book not found")
			ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Int64("id", id).Msg("get book failed")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get book"})
		return
	}
	ctx.JSON(http.StatusOK, present.MaskTitle(s.Policy, book))
}

func (s *Server) AddBook(ctx *gin.Context) {
	log := logger.Get()

	var req newBookRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid book payload"})
		return
	}
	if err := validate.Struct(req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid book payload: " + validationMessage(err)})
		return
	}
	book := req.toNewBook()
	if err := s.Policy.CheckNewBook(book); err != nil {
		log.Info().Str("genre", book.Genre).Msg("genre blocked for create")
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := s.Storage.SaveBook(ctx.Request.Context(), book)
	if err != nil {
		log.Error().Err(err).Msg("save book failed")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save book"})
		return
	}
	s.publish(ctx, events.NewEvent(events.TypeBookCreated, saved.ID))

	ctx.JSON(http.StatusCreated, saved)
}

func (s *Server) UpdateBooks(ctx *gin.Context) {
	log := logger.Get()

	var updates []models.BookUpdate
	if err := ctx.ShouldBindJSON(&updates); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid update payload"})
		return
	}
	for _, u := range updates {
		if err := validate.Struct(u); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid update payload: " + validationMessage(err)})
			return
		}
	}
	if err := s.Policy.CheckUpdates(updates); err != nil {
		var genreErr *policy.GenreError
		if errors.As(err, &genreErr) {
			log.Info().Str("genre", genreErr.Genre).Msg("genre blocked for update")
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := s.Storage.UpdateBooks(ctx.Request.Context(), updates)
	if err != nil {
		if errors.Is(err, storerrros.ErrBookNoExist) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("update books failed")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update books"})
		return
	}

	ids := make([]int64, len(updated))
	for i, b := range updated {
		ids[i] = b.ID
	}
	s.publish(ctx, events.NewEvent(events.TypeBookUpdated, ids...))

	ctx.JSON(http.StatusOK, present.MaskAll(s.Policy, updated))
}

func (s *Server) RemoveBook(ctx *gin.Context) {
	log := logger.Get()
	id, ok := bookID(ctx)
	if !ok {
		return
	}

	if err := s.Storage.DeleteBook(ctx.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, storerrros.ErrBookNoExist):
			log.Info().Int64("id", id).Msg("book not found")
			ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, storerrros.ErrLastInGenre):
			log.Info().Int64("id", id).Msg("cannot delete the last book in genre")
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Error().Err(err).Msg("failed to delete book")
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete book"})
		}
		return
	}
	s.publish(ctx, events.NewEvent(events.TypeBookDeleted, id))

	ctx.Status(http.StatusNoContent)
}

// bookID parses the :id path parameter and answers 400 when it is not an integer.
func bookID(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return 0, false
	}
	return id, true
}

// validationMessage names every failed field, e.g. "publication_year is required".
func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, ", ")
}
