package telegram

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/phuslu/log"
)

type Poller interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

// RetryDelay picks how long to wait after a failed getUpdates call.
func RetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

// RunPolling long-polls until ctx is done, backing off on errors.
func RunPolling(ctx context.Context, bot Poller, handle func(tgbotapi.Update)) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("polling: context cancelled")
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := RetryDelay(err)
			if d < baseDelay {
				d = baseDelay
			}
			if d > maxDelay {
				d = maxDelay
			}
			log.Warn().Err(err).Dur("retry_in", d).Msg("polling error")
			if !sleep(ctx, d) {
				return
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}
		if len(updates) == 0 && !sleep(ctx, 200*time.Millisecond) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// WebhookPath derives a stable, hard to guess path from the bot token.
func WebhookPath(token string) string {
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(token); i++ {
		h ^= uint64(token[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return "/webhook/" + string(out)
}

// WebhookWorkers is how many updates are processed at once in webhook mode.
const WebhookWorkers = 4

// StartWebhook registers the webhook with Telegram and feeds incoming updates
// to handle. Updates are served on mux.
func StartWebhook(bot *tgbotapi.BotAPI, mux *http.ServeMux, baseURL string, handle func(tgbotapi.Update)) error {
	path := WebhookPath(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		return err
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		return err
	}

	buf := bot.Buffer
	if buf <= 0 {
		buf = 100
	}
	updates := make(chan tgbotapi.Update, buf)
	mux.Handle(path, WebhookHandler(bot.HandleUpdate, updates))
	StartWorkers(WebhookWorkers, updates, handle)
	log.Info().Str("path", path).Msg("webhook registered")
	return nil
}

// WebhookHandler acknowledges every well-formed update at once and queues it.
// When the queue is full the update is dropped.
func WebhookHandler(parse func(*http.Request) (*tgbotapi.Update, error), updates chan<- tgbotapi.Update) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		upd, err := parse(r)
		if err != nil {
			log.Warn().Err(err).Msg("bad webhook update")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		select {
		case updates <- *upd:
		default:
			log.Warn().Int("update_id", upd.UpdateID).Msg("webhook queue full, update dropped")
		}
		w.WriteHeader(http.StatusOK)
	}
}

// StartWorkers drains updates with n goroutines until the channel is closed.
func StartWorkers(n int, updates <-chan tgbotapi.Update, handle func(tgbotapi.Update)) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		go func() {
			for upd := range updates {
				handle(upd)
			}
		}()
	}
}
