package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"repair-assistant/api/internal/diagnosis"
	"repair-assistant/api/internal/pipeline"
	"repair-assistant/api/internal/products"
	"repair-assistant/api/internal/pros"
	"repair-assistant/api/internal/visual"
)

type RunRepo struct{ DB *sql.DB }

func NewRunRepo(db *sql.DB) *RunRepo { return &RunRepo{DB: db} }

// SaveRun writes the query row and everything found for it in one
// transaction and returns the new query id.
func (r *RunRepo) SaveRun(ctx context.Context, rec pipeline.Record) (int64, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := SaveQuery(ctx, tx, rec.TraceID, rec.ChatID, rec.QueryText, rec.RoomImagePath, rec.Diagnosis)
	if err != nil {
		return 0, err
	}
	if err := SaveProducts(ctx, tx, id, rec.Products); err != nil {
		return 0, err
	}
	if err := SaveContractors(ctx, tx, id, rec.Contractors); err != nil {
		return 0, err
	}
	for _, v := range rec.Visuals {
		if v.ImagePath == "" {
			continue
		}
		if err := SaveGeneratedImage(ctx, tx, id, rec.RoomImagePath, v); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// SaveQuery inserts the query row. A zero chatID stores no owner.
func SaveQuery(ctx context.Context, db execer, traceID string, chatID int64, text, roomImage string, d diagnosis.Result) (int64, error) {
	js, err := json.Marshal(d)
	if err != nil {
		return 0, fmt.Errorf("marshal diagnosis: %w", err)
	}
	const q = `
insert into user_queries(trace_id, chat_id, query_text, room_image_path, diagnosis)
values ($1,$2,$3,$4,$5)
returning query_id`
	var id int64
	if err := db.QueryRowContext(ctx, q, traceID, nullInt64(chatID), text, nullString(roomImage), string(js)).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert user_queries: %w", err)
	}
	return id, nil
}

func SaveProducts(ctx context.Context, db execer, queryID int64, ps []products.Product) error {
	const q = `
insert into products(query_id, part_name, title, price, rating, reviews_count, product_url, image_url, local_image_path, seller)
values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	for _, p := range ps {
		if _, err := db.ExecContext(ctx, q, queryID, p.PartName, p.Title, nullString(p.Price), nullFloat(p.Rating),
			p.ReviewsCount, nullString(p.Link), nullString(p.ImageURL), nil, nullString(p.Store)); err != nil {
			return fmt.Errorf("insert product %q: %w", p.Title, err)
		}
	}
	return nil
}

func SaveContractors(ctx context.Context, db execer, queryID int64, cs []pros.Contractor) error {
	const q = `
insert into contractors(query_id, name, address, rating, reviews_count, place_id)
values ($1,$2,$3,$4,$5,$6)`
	for _, c := range cs {
		if _, err := db.ExecContext(ctx, q, queryID, c.Name, nullString(c.Address), nullFloat(c.Rating),
			c.ReviewsCount, nullString(c.PlaceID)); err != nil {
			return fmt.Errorf("insert contractor %q: %w", c.Name, err)
		}
	}
	return nil
}

func SaveGeneratedImage(ctx context.Context, db execer, queryID int64, roomImage string, v visual.StepVisual) error {
	const q = `
insert into generated_images(query_id, room_image_path, product_image_path, generated_image_path, generation_prompt)
values ($1,$2,$3,$4,$5)`
	if _, err := db.ExecContext(ctx, q, queryID, nullString(roomImage), nil, v.ImagePath, nullString(v.Prompt)); err != nil {
		return fmt.Errorf("insert generated image for step %d: %w", v.StepIndex, err)
	}
	return nil
}
