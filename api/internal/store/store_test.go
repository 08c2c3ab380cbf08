package store

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repair-assistant/api/internal/diagnosis"
	"repair-assistant/api/internal/pipeline"
	"repair-assistant/api/internal/products"
	"repair-assistant/api/internal/pros"
	"repair-assistant/api/internal/visual"
)

// openTestDB connects to TEST_DATABASE_URL or skips the test.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func TestSaveRunAndReadBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rating := 4.4
	rec := pipeline.Record{
		TraceID:       uuid.NewString(),
		QueryText:     "leaky kitchen faucet",
		RoomImagePath: "/tmp/sink.jpg",
		Diagnosis: diagnosis.Result{
			Summary:     "Worn cartridge.",
			Steps:       []string{"Shut off water", "Replace cartridge"},
			Confidence:  0.7,
			PartsNeeded: []string{"cartridge"},
		},
		Visuals: []visual.StepVisual{
			{StepIndex: 1, ImagePath: "step_visuals/step_1.png", Prompt: "shut off"},
			{StepIndex: 2},
		},
		Contractors: []pros.Contractor{
			{Name: "Drip Stop", Rating: &rating, Address: "1 Main St", PlaceID: "p1", ReviewsCount: 31},
			{Name: "New Plumbing Co", Address: "2 Main St", PlaceID: "p2"},
		},
		Products: []products.Product{
			{PartName: "cartridge", Title: "Moen 1225", Price: "$24.98", Store: "Home Depot", Link: "https://l"},
		},
	}

	id, err := NewRunRepo(db).SaveRun(ctx, rec)
	require.NoError(t, err)
	require.NotZero(t, id)

	hist := NewHistoryRepo(db)
	entries, err := hist.History(ctx, 50)
	require.NoError(t, err)
	var found *HistoryEntry
	for i := range entries {
		if entries[i].QueryID == id {
			found = &entries[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, rec.TraceID, found.TraceID)
	assert.Equal(t, 1, found.ProductCount)
	assert.Equal(t, 2, found.ContractorCount)
	assert.Equal(t, 1, found.ImageCount)

	d, err := hist.Details(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "leaky kitchen faucet", d.QueryText)
	assert.Equal(t, "/tmp/sink.jpg", d.RoomImagePath)
	require.NotNil(t, d.Diagnosis)
	assert.Equal(t, rec.Diagnosis.Steps, d.Diagnosis.Steps)
	require.Len(t, d.Contractors, 2)
	assert.Equal(t, 4.4, *d.Contractors[0].Rating)
	assert.Nil(t, d.Contractors[1].Rating)
	require.Len(t, d.Products, 1)
	assert.Equal(t, "Home Depot", d.Products[0].Seller)
	require.Len(t, d.Images, 1)
	assert.Equal(t, "shut off", d.Images[0].GenerationPrompt)
}

func TestDetailsNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := NewHistoryRepo(db).Details(context.Background(), -1)
	assert.True(t, IsNotFound(err))
}

func TestChatHistoryIsScoped(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	runs := NewRunRepo(db)

	chatA := time.Now().UnixNano()
	chatB := chatA + 1
	save := func(chatID int64, text string) int64 {
		id, err := runs.SaveRun(ctx, pipeline.Record{TraceID: uuid.NewString(), ChatID: chatID, QueryText: text})
		require.NoError(t, err)
		return id
	}
	a1 := save(chatA, "roof leak")
	a2 := save(chatA, "squeaky door")
	b1 := save(chatB, "broken window")
	save(0, "no owner")

	hist := NewHistoryRepo(db)
	got, err := hist.ChatHistory(ctx, chatA, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a2, got[0].QueryID)
	assert.Equal(t, a1, got[1].QueryID)

	got, err = hist.ChatHistory(ctx, chatB, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b1, got[0].QueryID)
	assert.Equal(t, "broken window", got[0].QueryText)
}
