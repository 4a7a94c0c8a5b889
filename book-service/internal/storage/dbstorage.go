package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/azaliaz/bookly/book-service/internal/domain/consts"
	"github.com/azaliaz/bookly/book-service/internal/domain/models"
	"github.com/azaliaz/bookly/book-service/internal/logger"
	storerrros "github.com/azaliaz/bookly/book-service/internal/storage/errors"
	"github.com/azaliaz/bookly/book-service/internal/storage/internal/adapters"
	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

const (
	DriverPGX  = "pgx"
	DriverSQLX = "sqlx"

	maxGenreLockAttempts = 3
)

var errGenreChanged = errors.New("book genre kept changing while locking")

type DBStorage struct {
	db adapters.DBAdapter
}

// NewDB opens a pgx pool for the given DSN.
func NewDB(ctx context.Context, addr string) (*DBStorage, error) {
	config, err := pgxpool.ParseConfig(addr)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DBStorage{db: adapters.NewPGXAdapter(pool)}, nil
}

// NewSQLXDB opens a database/sql pool through sqlx using the lib/pq driver.
func NewSQLXDB(ctx context.Context, addr string) (*DBStorage, error) {
	db, err := sqlx.Open("postgres", addr)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DBStorage{db: adapters.NewSQLXAdapter(db)}, nil
}

// Open picks the client library by name. An empty driver means pgx.
func Open(ctx context.Context, driver, addr string) (*DBStorage, error) {
	switch driver {
	case "", DriverPGX:
		return NewDB(ctx, addr)
	case DriverSQLX:
		return NewSQLXDB(ctx, addr)
	default:
		return nil, fmt.Errorf("unknown db driver %q", driver)
	}
}

func (dbs *DBStorage) Close() error {
	return dbs.db.Close()
}

func (dbs *DBStorage) GetBooks(ctx context.Context, filter models.BookFilter) ([]models.Book, error) {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	query, args, err := buildSelectBooks(filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to build select query")
		return nil, err
	}
	log.Debug().Str("query", query).Msg("select books")

	rows, err := dbs.db.Query(ctx, query, args...)
	if err != nil {
		logDBError(log, err, "failed get books from db")
		return nil, fmt.Errorf("query books: %w", err)
	}
	books, err := scanBooks(rows)
	if err != nil {
		log.Error().Err(err).Msg("failed to scan data from db")
		return nil, err
	}
	return books, nil
}

func (dbs *DBStorage) GetBook(ctx context.Context, id int64) (models.Book, error) {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	query, args, err := buildSelectBook(id, false)
	if err != nil {
		log.Error().Err(err).Msg("failed to build select query")
		return models.Book{}, err
	}

	rows, err := dbs.db.Query(ctx, query, args...)
	if err != nil {
		logDBError(log, err, "failed get book from db")
		return models.Book{}, fmt.Errorf("query book: %w", err)
	}
	book, found, err := scanOne(rows)
	if err != nil {
		log.Error().Err(err).Msg("failed to scan data from db")
		return models.Book{}, err
	}
	if !found {
		log.Debug().Int64("id", id).Msg("book not found")
		return models.Book{}, storerrros.NotFound(id)
	}
	return book, nil
}

func (dbs *DBStorage) SaveBook(ctx context.Context, book models.NewBook) (models.Book, error) {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	query, args, err := buildInsertBook(book)
	if err != nil {
		log.Error().Err(err).Msg("failed to build insert query")
		return models.Book{}, err
	}

	saved := models.Book{
		Title:           book.Title,
		Author:          book.Author,
		PublicationYear: book.PublicationYear,
		Genre:           book.Genre,
	}
	err = dbs.inTx(ctx, func(tx adapters.DBTx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return err
			}
			return errors.New("insert returned no id")
		}
		if err := rows.Scan(&saved.ID); err != nil {
			return err
		}
		return rows.Err()
	})
	if err != nil {
		logDBError(log, err, "save book failed")
		return models.Book{}, fmt.Errorf("insert book: %w", err)
	}
	log.Info().Int64("id", saved.ID).Str("genre", saved.Genre).Msg("book saved")
	return saved, nil
}

// UpdateBooks applies the whole batch in one transaction. All rows of the
// batch are locked in id order first, the same order DeleteBook uses, so the
// two never deadlock. The first unknown id rolls back the whole batch.
func (dbs *DBStorage) UpdateBooks(ctx context.Context, updates []models.BookUpdate) ([]models.Book, error) {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	updated := make([]models.Book, 0, len(updates))
	err := dbs.inTx(ctx, func(tx adapters.DBTx) error {
		if err := lockBooks(ctx, tx, updates); err != nil {
			return err
		}
		for _, u := range updates {
			book, err := updateOne(ctx, tx, u)
			if err != nil {
				return err
			}
			updated = append(updated, book)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storerrros.ErrBookNoExist) {
			log.Warn().Err(err).Msg("update batch rolled back")
			return nil, err
		}
		logDBError(log, err, "update books failed")
		return nil, fmt.Errorf("update books: %w", err)
	}
	log.Info().Int("count", len(updated)).Msg("books updated")
	return updated, nil
}

// lockBooks locks the distinct ids of the batch and reports the first
// unknown one in input order.
func lockBooks(ctx context.Context, tx adapters.DBTx, updates []models.BookUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	batch := make([]int64, 0, len(updates))
	for _, u := range updates {
		batch = append(batch, u.ID)
	}
	slices.Sort(batch)
	batch = slices.Compact(batch)

	query, args, err := buildLockBooks(batch)
	if err != nil {
		return err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	locked, err := scanIDs(rows)
	if err != nil {
		return err
	}
	if len(locked) == len(batch) {
		return nil
	}
	for _, u := range updates {
		if _, found := slices.BinarySearch(locked, u.ID); !found {
			return storerrros.NotFound(u.ID)
		}
	}
	return nil
}

func updateOne(ctx context.Context, tx adapters.DBTx, u models.BookUpdate) (models.Book, error) {
	var (
		query string
		args  []any
		err   error
	)
	if u.Empty() {
		query, args, err = buildSelectBook(u.ID, true)
	} else {
		query, args, err = buildUpdateBook(u)
	}
	if err != nil {
		return models.Book{}, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return models.Book{}, err
	}
	book, found, err := scanOne(rows)
	if err != nil {
		return models.Book{}, err
	}
	if !found {
		return models.Book{}, storerrros.NotFound(u.ID)
	}
	return book, nil
}

// DeleteBook locks every book of the target's genre in id order before
// counting them. Concurrent deletes in one genre therefore queue up behind
// each other and the genre can never be emptied.
func (dbs *DBStorage) DeleteBook(ctx context.Context, id int64) error {
	log := logger.Get()
	ctx, cancel := context.WithTimeout(ctx, consts.DBCtxTimeout)
	defer cancel()

	err := dbs.inTx(ctx, func(tx adapters.DBTx) error {
		count, err := lockGenreOf(ctx, tx, id)
		if err != nil {
			return err
		}
		if count == 1 {
			return storerrros.LastInGenre(id)
		}

		query, args, err := buildDeleteBook(id)
		if err != nil {
			return err
		}
		res, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return storerrros.NotFound(id)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storerrros.ErrBookNoExist) || errors.Is(err, storerrros.ErrLastInGenre) {
			log.Warn().Err(err).Int64("id", id).Msg("book not deleted")
			return err
		}
		logDBError(log, err, "failed to delete book")
		return fmt.Errorf("delete book: %w", err)
	}
	log.Info().Int64("id", id).Msg("book deleted successfully")
	return nil
}

// lockGenreOf locks all rows sharing the genre of book id and returns how
// many there are. The genre is read without a lock first so that every
// caller takes row locks in the same order; if an update moved the book to
// another genre in between, the lookup is repeated.
func lockGenreOf(ctx context.Context, tx adapters.DBTx, id int64) (int, error) {
	for attempt := 0; attempt < maxGenreLockAttempts; attempt++ {
		query, args, err := buildSelectBook(id, false)
		if err != nil {
			return 0, err
		}
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		book, found, err := scanOne(rows)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, storerrros.NotFound(id)
		}

		query, args, err = buildLockGenre(book.Genre)
		if err != nil {
			return 0, err
		}
		rows, err = tx.Query(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		locked, err := scanIDs(rows)
		if err != nil {
			return 0, err
		}
		if slices.Contains(locked, id) {
			return len(locked), nil
		}
	}
	return 0, errGenreChanged
}

func (dbs *DBStorage) inTx(ctx context.Context, fn func(tx adapters.DBTx) error) (err error) {
	tx, err := dbs.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log := logger.Get()
				log.Error().Err(rbErr).Msg("rollback failed")
			}
			return
		}
		err = tx.Commit(ctx)
	}()
	return fn(tx)
}

func scanBooks(rows adapters.DBRows) ([]models.Book, error) {
	defer rows.Close()

	books := make([]models.Book, 0)
	for rows.Next() {
		var book models.Book
		if err := rows.Scan(&book.ID, &book.Title, &book.Author, &book.PublicationYear, &book.Genre); err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}

func scanOne(rows adapters.DBRows) (models.Book, bool, error) {
	books, err := scanBooks(rows)
	if err != nil {
		return models.Book{}, false, err
	}
	if len(books) == 0 {
		return models.Book{}, false, nil
	}
	return books[0], true, nil
}

func scanIDs(rows adapters.DBRows) ([]int64, error) {
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// sqlState extracts the SQLSTATE code from either client library's error.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func logDBError(log zerolog.Logger, err error, msg string) {
	code := sqlState(err)
	if code == "" {
		log.Error().Err(err).Msg(msg)
		return
	}
	if pgerrcode.IsTransactionRollback(code) {
		log.Warn().Err(err).Str("sqlstate", code).Msg("transaction conflict")
		return
	}
	log.Error().Err(err).Str("sqlstate", code).Msg(msg)
}

func Migrations(dbDsn string, migrationsPath string) error {
	log := logger.Get()
	migratePath := fmt.Sprintf("file://%s", migrationsPath)
	m, err := migrate.New(migratePath, dbDsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("no migrations apply")
			return nil
		}
		return err
	}
	log.Info().Msg("all migrations apply")
	return nil
}
