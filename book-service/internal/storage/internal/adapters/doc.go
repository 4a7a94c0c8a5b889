// Package adapters hides the PostgreSQL client library behind a small
// interface so the book storage runs on either a pgx pool or a sqlx.DB
// backed by lib/pq. Both speak the same $n placeholder dialect.
package adapters
