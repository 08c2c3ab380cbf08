// Package app builds the repair pipeline and its storage from a Config. The
// binaries under api/cmd share it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phuslu/log"

	"repair-assistant/api/internal/artifact"
	"repair-assistant/api/internal/config"
	"repair-assistant/api/internal/diagnosis"
	"repair-assistant/api/internal/geo"
	"repair-assistant/api/internal/httpclient"
	"repair-assistant/api/internal/llm/gemini"
	"repair-assistant/api/internal/pipeline"
	"repair-assistant/api/internal/products"
	"repair-assistant/api/internal/pros"
	"repair-assistant/api/internal/store"
	"repair-assistant/api/internal/visual"
)

// SetupLogging applies the configured level to the default logger.
func SetupLogging(level string) {
	log.DefaultLogger.Level = log.ParseLevel(level)
}

// OpenDB connects to Postgres, pings it and applies the schema. An empty dsn
// returns a nil DB and no error.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	if err := store.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info().Str("db", config.SafeDSNSummary(dsn)).Msg("db connected")
	return db, nil
}

// NewPipeline wires every stage from cfg. db may be nil, in which case runs
// are not persisted.
func NewPipeline(cfg *config.Config, db *sql.DB) *pipeline.Pipeline {
	gen := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	limiter := httpclient.NewLimiter(cfg.PlacesRPS)

	p := &pipeline.Pipeline{
		Diagnoser: diagnosis.WithRetry(diagnosis.New(gen, cfg.DiagnoseTimeout), cfg.RetryDelay),
		Resolver: &geo.Resolver{
			Geocoder: geo.NewGoogleGeocoder(cfg.MapsAPIKey, cfg.PlacesTimeout, limiter, cfg.GeocodeCache),
			IP:       geo.NewIPLocator(cfg.IPLookupTimeout),
			Override: cfg.LocationOverride,
		},
		Pros:           pros.NewFinder(cfg.MapsAPIKey, cfg.PlacesTimeout, limiter),
		Products:       products.NewFinder(cfg.SerperAPIKey, cfg.ShoppingTimeout, limiter),
		TopK:           cfg.TopK,
		DefaultRadiusM: cfg.RadiusMeters,
	}
	if cfg.VisualsEnable {
		p.Visuals = visual.New(cfg.GeminiAPIKey, cfg.ImageModel, cfg.OutputDir, cfg.ImageTimeout)
	}
	if db != nil {
		p.Sink = store.NewRunRepo(db)
	}
	if cfg.Artifact.Enabled() {
		s3, err := artifact.NewS3Store(artifact.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		})
		if err != nil {
			log.Warn().Err(err).Msg("artifact store disabled")
		} else {
			p.Mirror = s3
		}
	}
	log.Info().
		Str("model", cfg.GeminiModel).
		Bool("visuals", p.Visuals != nil).
		Bool("persist", p.Sink != nil).
		Bool("mirror", p.Mirror != nil).
		Msg("pipeline ready")
	return p
}
