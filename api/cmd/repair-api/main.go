package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/phuslu/log"

	"repair-assistant/api/internal/app"
	"repair-assistant/api/internal/config"
	"repair-assistant/api/internal/handle"
	"repair-assistant/api/internal/httpserver"
	"repair-assistant/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	app.SetupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database")
	}

	var (
		history handle.HistoryReader
		pinger  handle.Pinger
	)
	if db != nil {
		defer db.Close()
		history = store.NewHistoryRepo(db)
		pinger = db
	} else {
		log.Warn().Msg("DATABASE_URL not set: history disabled, runs not persisted")
	}

	mux := http.NewServeMux()
	handle.New(app.NewPipeline(cfg, db), history, pinger).Routes(mux)

	srv := httpserver.New("0.0.0.0:"+cfg.Port, "repair-api", mux)
	if err := httpserver.Serve(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("http server")
	}
}
