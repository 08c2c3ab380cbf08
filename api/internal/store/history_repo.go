package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"repair-assistant/api/internal/diagnosis"
)

const DefaultHistoryLimit = 10

type HistoryEntry struct {
	QueryID         int64     `json:"query_id"`
	TraceID         string    `json:"trace_id"`
	QueryText       string    `json:"query_text"`
	Timestamp       time.Time `json:"timestamp"`
	RoomImagePath   string    `json:"room_image_path,omitempty"`
	ProductCount    int       `json:"product_count"`
	ContractorCount int       `json:"contractor_count"`
	ImageCount      int       `json:"image_count"`
}

type ProductRow struct {
	ProductID    int64    `json:"product_id"`
	PartName     string   `json:"product_name"`
	Title        string   `json:"title"`
	Price        string   `json:"price"`
	Rating       *float64 `json:"rating"`
	ReviewsCount int      `json:"reviews_count"`
	ProductURL   string   `json:"product_url"`
	ImageURL     string   `json:"image_url,omitempty"`
	Seller       string   `json:"seller"`
}

type ContractorRow struct {
	ContractorID int64    `json:"contractor_id"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Rating       *float64 `json:"rating"`
	ReviewsCount int      `json:"reviews_count"`
	PlaceID      string   `json:"place_id"`
}

type ImageRow struct {
	ImageID            int64     `json:"image_id"`
	GeneratedImagePath string    `json:"generated_image_path"`
	GenerationPrompt   string    `json:"generation_prompt"`
	Timestamp          time.Time `json:"timestamp"`
}

type QueryDetails struct {
	HistoryEntry
	Diagnosis   *diagnosis.Result `json:"diagnosis,omitempty"`
	Products    []ProductRow      `json:"products"`
	Contractors []ContractorRow   `json:"contractors"`
	Images      []ImageRow        `json:"generated_images"`
}

type HistoryRepo struct{ DB *sql.DB }

func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{DB: db} }

const historySelect = `
select q.query_id, q.trace_id, q.query_text, q."timestamp", coalesce(q.room_image_path,''),
       (select count(*) from products p where p.query_id = q.query_id),
       (select count(*) from contractors c where c.query_id = q.query_id),
       (select count(*) from generated_images g where g.query_id = q.query_id)
from user_queries q`

// History lists the most recent queries with per-query result counts.
func (r *HistoryRepo) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return r.list(ctx, historySelect+` order by q."timestamp" desc, q.query_id desc limit $1`, limit)
}

// ChatHistory is History restricted to the queries one chat made.
func (r *HistoryRepo) ChatHistory(ctx context.Context, chatID int64, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return r.list(ctx, historySelect+` where q.chat_id = $1 order by q."timestamp" desc, q.query_id desc limit $2`, chatID, limit)
}

func (r *HistoryRepo) list(ctx context.Context, q string, args ...any) ([]HistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := []HistoryEntry{}
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.QueryID, &h.TraceID, &h.QueryText, &h.Timestamp, &h.RoomImagePath,
			&h.ProductCount, &h.ContractorCount, &h.ImageCount); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Details loads one query with everything saved for it. A missing id yields
// ErrNotFound.
func (r *HistoryRepo) Details(ctx context.Context, queryID int64) (*QueryDetails, error) {
	var (
		d  QueryDetails
		js []byte
	)
	row := r.DB.QueryRowContext(ctx, `
select q.query_id, q.trace_id, q.query_text, q."timestamp", coalesce(q.room_image_path,''), q.diagnosis
from user_queries q where q.query_id = $1`, queryID)
	if err := row.Scan(&d.QueryID, &d.TraceID, &d.QueryText, &d.Timestamp, &d.RoomImagePath, &js); err != nil {
		return nil, err
	}
	if len(js) > 0 {
		var res diagnosis.Result
		if err := json.Unmarshal(js, &res); err == nil {
			d.Diagnosis = &res
		}
	}

	var err error
	if d.Products, err = r.products(ctx, queryID); err != nil {
		return nil, err
	}
	if d.Contractors, err = r.contractors(ctx, queryID); err != nil {
		return nil, err
	}
	if d.Images, err = r.images(ctx, queryID); err != nil {
		return nil, err
	}
	d.ProductCount, d.ContractorCount, d.ImageCount = len(d.Products), len(d.Contractors), len(d.Images)
	return &d, nil
}

func (r *HistoryRepo) products(ctx context.Context, queryID int64) ([]ProductRow, error) {
	rows, err := r.DB.QueryContext(ctx, `
select product_id, part_name, title, coalesce(price,''), rating, coalesce(reviews_count,0),
       coalesce(product_url,''), coalesce(image_url,''), coalesce(seller,'')
from products where query_id = $1 order by product_id`, queryID)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	out := []ProductRow{}
	for rows.Next() {
		var (
			p      ProductRow
			rating sql.NullFloat64
		)
		if err := rows.Scan(&p.ProductID, &p.PartName, &p.Title, &p.Price, &rating, &p.ReviewsCount,
			&p.ProductURL, &p.ImageURL, &p.Seller); err != nil {
			return nil, err
		}
		p.Rating = floatPtr(rating)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *HistoryRepo) contractors(ctx context.Context, queryID int64) ([]ContractorRow, error) {
	rows, err := r.DB.QueryContext(ctx, `
select contractor_id, name, coalesce(address,''), rating, coalesce(reviews_count,0), coalesce(place_id,'')
from contractors where query_id = $1 order by contractor_id`, queryID)
	if err != nil {
		return nil, fmt.Errorf("query contractors: %w", err)
	}
	defer rows.Close()

	out := []ContractorRow{}
	for rows.Next() {
		var (
			c      ContractorRow
			rating sql.NullFloat64
		)
		if err := rows.Scan(&c.ContractorID, &c.Name, &c.Address, &rating, &c.ReviewsCount, &c.PlaceID); err != nil {
			return nil, err
		}
		c.Rating = floatPtr(rating)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *HistoryRepo) images(ctx context.Context, queryID int64) ([]ImageRow, error) {
	rows, err := r.DB.QueryContext(ctx, `
select image_id, coalesce(generated_image_path,''), coalesce(generation_prompt,''), "timestamp"
from generated_images where query_id = $1 order by image_id`, queryID)
	if err != nil {
		return nil, fmt.Errorf("query generated images: %w", err)
	}
	defer rows.Close()

	out := []ImageRow{}
	for rows.Next() {
		var im ImageRow
		if err := rows.Scan(&im.ImageID, &im.GeneratedImagePath, &im.GenerationPrompt, &im.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}
