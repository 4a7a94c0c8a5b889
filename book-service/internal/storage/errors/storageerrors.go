package storerrros

import (
	"errors"
	"fmt"
)

var (
	ErrBookNoExist = errors.New("book does not exists")
	ErrLastInGenre = errors.New("last book in genre")
)

// BookError ties a domain error to the id of the book that caused it.
type BookError struct {
	ID  int64
	Err error
}

func NotFound(id int64) error {
	return &BookError{ID: id, Err: ErrBookNoExist}
}

func LastInGenre(id int64) error {
	return &BookError{ID: id, Err: ErrLastInGenre}
}

func (e *BookError) Error() string {
	if errors.Is(e.Err, ErrLastInGenre) {
		return fmt.Sprintf("Last book in genre cannot be deleted: %d", e.ID)
	}
	return fmt.Sprintf("Invalid book id: %d", e.ID)
}

func (e *BookError) Unwrap() error {
	return e.Err
}
