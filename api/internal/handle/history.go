package handle

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phuslu/log"

	"repair-assistant/api/internal/store"
)

type historyQuery struct {
	Limit int `validate:"gte=0,lte=100"`
}

func (h *Handle) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history is not configured")
		return
	}
	var q historyQuery
	if s := strings.TrimSpace(r.URL.Query().Get("limit")); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad limit: "+s)
			return
		}
		q.Limit = v
	}
	if err := h.validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be between 0 and 100")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), deadline(r, 10*time.Second))
	defer cancel()
	out, err := h.history.History(ctx, q.Limit)
	if err != nil {
		log.Error().Err(err).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "history error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handle) HistoryDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history is not configured")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad query id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), deadline(r, 10*time.Second))
	defer cancel()
	d, err := h.history.Details(ctx, id)
	if store.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "query not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("query_id", id).Msg("history details failed")
		writeError(w, http.StatusInternalServerError, "history error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}
