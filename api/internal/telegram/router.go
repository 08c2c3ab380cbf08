package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/phuslu/log"

	"repair-assistant/api/internal/apperr"
	"repair-assistant/api/internal/pipeline"
	"repair-assistant/api/internal/store"
)

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

// HistoryReader lists the queries of one chat.
type HistoryReader interface {
	ChatHistory(ctx context.Context, chatID int64, limit int) ([]store.HistoryEntry, error)
}

type Router struct {
	Bot     Bot
	Runner  Runner
	History HistoryReader // optional

	RunTimeout  time.Duration
	SendVisuals bool
}

const maxMessageLen = 3900

const helpText = `Send a photo, video, voice note or audio of the problem, with a caption describing it, or just describe it in text.

Commands:
/location <address or lat,lng> - where to look for contractors
/radius <meters> - search radius (default 8000)
/history - your recent requests
You can also share your location from the attachment menu.`

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.Message == nil || upd.Message.Chat == nil {
		return
	}
	msg := upd.Message
	cid := msg.Chat.ID

	if msg.IsCommand() {
		r.HandleCommand(msg)
		return
	}
	if msg.Location != nil {
		loc := fmt.Sprintf("%f,%f", msg.Location.Latitude, msg.Location.Longitude)
		setLocation(cid, loc)
		r.send(cid, "📍 Location saved: "+loc)
		return
	}

	description := strings.TrimSpace(msg.Caption)
	if description == "" {
		description = strings.TrimSpace(msg.Text)
	}
	items, err := r.collectMedia(msg)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	if len(items) == 0 && description == "" {
		return
	}
	r.send(cid, "🔧 Got it, analysing the problem…")

	st := getState(cid)
	ctx := context.Background()
	if r.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.RunTimeout)
		defer cancel()
	}
	resp, err := r.Runner.Run(ctx, pipeline.Request{
		Description: description,
		Media:       items,
		Location:    st.Location,
		RadiusM:     st.RadiusM,
		ChatID:      cid,
	})
	if err != nil {
		r.SendError(cid, err)
		return
	}
	r.sendChunked(cid, FormatResponse(resp))
	if r.SendVisuals {
		r.sendVisuals(cid, resp)
	}
}

func (r *Router) HandleCommand(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "location":
		if args == "" {
			st := getState(cid)
			if st.Location == "" {
				r.send(cid, "No location set. Usage: /location <address or lat,lng>")
			} else {
				r.send(cid, "Current location: "+st.Location)
			}
			return
		}
		setLocation(cid, args)
		r.send(cid, "📍 Location saved: "+args)
	case "radius":
		v, err := strconv.Atoi(args)
		if err != nil || v <= 0 || v > pipeline.MaxRadiusM {
			r.send(cid, fmt.Sprintf("Usage: /radius <meters>, between 1 and %d", pipeline.MaxRadiusM))
			return
		}
		setRadius(cid, v)
		r.send(cid, fmt.Sprintf("Search radius set to %d m", v))
	case "history":
		r.sendHistory(cid)
	default:
		r.send(cid, "Unknown command. /help")
	}
}

func (r *Router) sendHistory(cid int64) {
	if r.History == nil {
		r.send(cid, "History is not available.")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	entries, err := r.History.ChatHistory(ctx, cid, 5)
	if err != nil {
		r.SendError(cid, err)
		return
	}
	if len(entries) == 0 {
		r.send(cid, "No requests yet.")
		return
	}
	var b strings.Builder
	b.WriteString("🗂 Recent requests:\n")
	for _, e := range entries {
		text := e.QueryText
		if text == "" {
			text = "(media only)"
		}
		fmt.Fprintf(&b, "\n#%d %s\n%s\nproducts: %d, contractors: %d, images: %d\n",
			e.QueryID, e.Timestamp.Format("2006-01-02 15:04"), text, e.ProductCount, e.ContractorCount, e.ImageCount)
	}
	r.send(cid, b.String())
}

func (r *Router) sendVisuals(cid int64, resp pipeline.Response) {
	for i, p := range resp.StepVisuals {
		if p == nil {
			continue
		}
		ph := tgbotapi.NewPhoto(cid, tgbotapi.FilePath(*p))
		ph.Caption = fmt.Sprintf("Step %d", i+1)
		if _, err := r.Bot.Send(ph); err != nil {
			log.Warn().Err(err).Int64("chat_id", cid).Str("path", *p).Msg("send step visual failed")
		}
	}
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
	}
}

func (r *Router) sendChunked(chatID int64, text string) {
	for len(text) > maxMessageLen {
		cut := strings.LastIndex(text[:maxMessageLen], "\n")
		if cut <= 0 {
			cut = maxMessageLen
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxMessageLen
			}
		}
		r.send(chatID, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		r.send(chatID, text)
	}
}

func (r *Router) SendError(chatID int64, err error) {
	if apperr.Is(err, apperr.Validation) {
		r.send(chatID, "⚠️ "+err.Error())
		return
	}
	log.Error().Err(err).Int64("chat_id", chatID).Msg("telegram request failed")
	r.send(chatID, fmt.Sprintf("Error: %v", err))
}
