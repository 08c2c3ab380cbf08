package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/phuslu/log"

	"repair-assistant/api/internal/app"
	"repair-assistant/api/internal/config"
	"repair-assistant/api/internal/handle"
	"repair-assistant/api/internal/httpserver"
	"repair-assistant/api/internal/store"
	"repair-assistant/api/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	app.SetupLogging(cfg.LogLevel)
	if strings.TrimSpace(cfg.TelegramBotToken) == "" {
		log.Fatal().Msg("TELEGRAM_BOT_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram")
	}
	bot.Debug = false

	p := app.NewPipeline(cfg, db)
	r := &telegram.Router{
		Bot:         bot,
		Runner:      p,
		RunTimeout:  3 * time.Minute,
		SendVisuals: p.Visuals != nil,
	}

	var pinger handle.Pinger
	if db != nil {
		defer db.Close()
		r.History = store.NewHistoryRepo(db)
		pinger = db
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handle.New(p, nil, pinger).Healthz)
	srv := httpserver.New("0.0.0.0:"+cfg.Port, "repair-bot", mux)

	if url := strings.TrimSpace(cfg.WebhookURL); url != "" {
		if err := telegram.StartWebhook(bot, mux, url, r.HandleUpdate); err != nil {
			log.Fatal().Err(err).Msg("webhook")
		}
		if err := httpserver.Serve(ctx, srv); err != nil {
			log.Fatal().Err(err).Msg("http server")
		}
		return
	}

	go func() {
		if err := httpserver.Serve(ctx, srv); err != nil {
			log.Error().Err(err).Msg("health server")
		}
	}()
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.Warn().Err(err).Msg("delete webhook")
	}
	telegram.RunPolling(ctx, bot, r.HandleUpdate)
}
