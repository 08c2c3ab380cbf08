package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"repair-assistant/api/internal/pipeline"
	"repair-assistant/api/internal/store"
)

type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

type HistoryReader interface {
	History(ctx context.Context, limit int) ([]store.HistoryEntry, error)
	Details(ctx context.Context, queryID int64) (*store.QueryDetails, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

const (
	defaultDeadline  = 120 * time.Second
	defaultMaxUpload = 32 << 20
)

type Handle struct {
	runner    Runner
	history   HistoryReader
	db        Pinger
	validate  *validator.Validate
	maxUpload int64
}

// New builds the API handlers. history and db may be nil when no database is
// configured.
func New(runner Runner, history HistoryReader, db Pinger) *Handle {
	return &Handle{
		runner:    runner,
		history:   history,
		db:        db,
		validate:  validator.New(),
		maxUpload: defaultMaxUpload,
	}
}

// Routes registers every endpoint on mux.
func (h *Handle) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/v1/repair", h.Repair)
	mux.HandleFunc("/v1/history", h.History)
	mux.HandleFunc("/v1/history/{id}", h.HistoryDetails)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// deadline reads X-Request-Timeout or ?timeoutSec= (seconds).
func deadline(r *http.Request, def time.Duration) time.Duration {
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return def
}

func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "db: "+err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
