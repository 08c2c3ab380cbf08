package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = sql.ErrNoRows

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var schema = []string{
	`create table if not exists user_queries (
		query_id        bigserial primary key,
		trace_id        text not null default '',
		chat_id         bigint,
		query_text      text not null default '',
		"timestamp"     timestamptz not null default now(),
		room_image_path text,
		diagnosis       jsonb
	)`,
	`create table if not exists products (
		product_id       bigserial primary key,
		query_id         bigint not null references user_queries(query_id) on delete cascade,
		part_name        text not null default '',
		title            text not null,
		price            text,
		rating           double precision,
		reviews_count    integer,
		product_url      text,
		image_url        text,
		local_image_path text,
		seller           text
	)`,
	`create table if not exists contractors (
		contractor_id bigserial primary key,
		query_id      bigint not null references user_queries(query_id) on delete cascade,
		name          text not null,
		address       text,
		rating        double precision,
		reviews_count integer,
		place_id      text
	)`,
	`create table if not exists generated_images (
		image_id             bigserial primary key,
		query_id             bigint not null references user_queries(query_id) on delete cascade,
		room_image_path      text,
		product_image_path   text,
		generated_image_path text,
		generation_prompt    text,
		"timestamp"          timestamptz not null default now()
	)`,
	`alter table user_queries add column if not exists chat_id bigint`,
	`create index if not exists user_queries_chat_idx on user_queries(chat_id, "timestamp" desc)`,
	`create index if not exists products_query_idx on products(query_id)`,
	`create index if not exists contractors_query_idx on contractors(query_id)`,
	`create index if not exists generated_images_query_idx on generated_images(query_id)`,
}

// Migrate creates the tables when they are missing. It is safe to run on
// every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
