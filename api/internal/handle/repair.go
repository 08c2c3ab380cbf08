package handle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/phuslu/log"

	"repair-assistant/api/internal/apperr"
	"repair-assistant/api/internal/media"
	"repair-assistant/api/internal/pipeline"
)

// Repair accepts a multipart form with description, location, radius and
// optional image/video/audio files, and returns the aggregated response.
func (h *Handle) Repair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "bad form: "+err.Error())
		return
	}

	req := pipeline.Request{
		Description: r.FormValue("description"),
		Location:    r.FormValue("location"),
	}
	if s := strings.TrimSpace(r.FormValue("radius")); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad radius: "+s)
			return
		}
		req.RadiusM = v
	}

	items, err := readMedia(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Media = items

	ctx, cancel := context.WithTimeout(r.Context(), deadline(r, defaultDeadline))
	defer cancel()

	resp, err := h.runner.Run(ctx, req)
	if err != nil {
		if apperr.Is(err, apperr.Validation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Msg("repair run failed")
		writeError(w, http.StatusInternalServerError, "repair error: "+err.Error())
		return
	}
	if resp.TraceID != "" {
		w.Header().Set("X-Trace-Id", resp.TraceID)
	}
	writeJSON(w, http.StatusOK, resp)
}

func readMedia(r *http.Request) ([]media.Item, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var items []media.Item
	for _, k := range media.Kinds {
		f, hdr, err := r.FormFile(string(k))
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", k, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", k, err)
		}
		it, err := media.FromBytes(k, data, hdr.Filename)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}
