package adapters

import "context"

// DBAdapter defines the database operations needed by the book storage.
type DBAdapter interface {
	Query(ctx context.Context, query string, args ...any) (DBRows, error)
	Begin(ctx context.Context) (DBTx, error)
	Close() error
}

// DBTx is a running transaction. Rollback after Commit is a no-op.
type DBTx interface {
	Query(ctx context.Context, query string, args ...any) (DBRows, error)
	Exec(ctx context.Context, query string, args ...any) (DBResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}
