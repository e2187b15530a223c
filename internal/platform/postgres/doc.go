// Package postgres provides the PostgreSQL backend of the durable job queue.
// It opens connections through the pgx database/sql driver, claims jobs with
// FOR UPDATE SKIP LOCKED so any number of workers and processes can share a
// queue, and ships its schema as embedded goose migrations.
package postgres
