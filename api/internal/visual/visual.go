// Package visual renders one illustrative image per repair step.
package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phuslu/log"

	"repair-assistant/api/internal/apperr"
	"repair-assistant/api/internal/httpclient"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// StepVisual ties a 1-based step index to the file rendered for it. An empty
// ImagePath means no visual was produced.
type StepVisual struct {
	StepIndex int
	ImagePath string
	Prompt    string
}

// Mirror receives a copy of every saved visual.
type Mirror interface {
	Put(ctx context.Context, runID, name, contentType string, content []byte) error
}

type Visualizer struct {
	apiKey  string
	model   string
	baseURL string
	dir     string
	http    *http.Client
}

func New(apiKey, model, dir string, timeout time.Duration) *Visualizer {
	return &Visualizer{
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		baseURL: DefaultBaseURL,
		dir:     dir,
		http:    httpclient.New(timeout),
	}
}

func (v *Visualizer) WithBaseURL(u string) *Visualizer {
	v.baseURL = strings.TrimRight(u, "/")
	return v
}

func Prompt(step string) string {
	return "Create a simple, clear sketch-style illustration that shows this home repair step: " +
		strings.TrimSpace(step) + ". White background, no text labels."
}

// FileName is the deterministic name of the visual for a step.
func FileName(index int) string { return fmt.Sprintf("step_%d.png", index) }

// RunDir is where the visuals of one run are kept.
func (v *Visualizer) RunDir(runID string) string { return filepath.Join(v.dir, runID) }

// Visualize renders step and saves it under the run's directory. Any failure
// yields ("", false).
func (v *Visualizer) Visualize(ctx context.Context, runID, step string, index int) (path string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("step", index).Str("panic", fmt.Sprint(r)).Msg("step visual panicked")
			path, ok = "", false
		}
	}()

	if strings.TrimSpace(runID) == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		log.Warn().Str("run_id", runID).Msg("bad run id for step visual")
		return "", false
	}
	img, err := v.generate(ctx, Prompt(step))
	if err != nil {
		log.Warn().Err(err).Int("step", index).Msg("step visual not generated")
		return "", false
	}
	dir := v.RunDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("cannot create visuals dir")
		return "", false
	}
	path = filepath.Join(dir, FileName(index))
	if err := os.WriteFile(path, img, 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("cannot write step visual")
		return "", false
	}
	log.Info().Int("step", index).Str("path", path).Int("bytes", len(img)).Msg("step visual saved")
	return path, true
}

// VisualizeAll returns one entry per step, in order. Steps are rendered one
// after another; a failed step does not affect the rest. Files of different
// runs never share a path.
func (v *Visualizer) VisualizeAll(ctx context.Context, runID string, steps []string) []StepVisual {
	out := make([]StepVisual, 0, len(steps))
	for i, s := range steps {
		idx := i + 1
		p, _ := v.Visualize(ctx, runID, s, idx)
		out = append(out, StepVisual{StepIndex: idx, ImagePath: p, Prompt: Prompt(s)})
	}
	return out
}

// MirrorAll uploads every saved visual under runID. Upload failures are only
// logged.
func MirrorAll(ctx context.Context, m Mirror, runID string, visuals []StepVisual) {
	if m == nil {
		return
	}
	for _, sv := range visuals {
		if sv.ImagePath == "" {
			continue
		}
		data, err := os.ReadFile(sv.ImagePath)
		if err == nil {
			err = m.Put(ctx, runID, FileName(sv.StepIndex), "image/png", data)
		}
		if err != nil {
			log.Warn().Err(err).Str("run_id", runID).Int("step", sv.StepIndex).Msg("visual mirror failed")
		}
	}
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string      `json:"text,omitempty"`
				InlineData *inlineData `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (v *Visualizer) generate(ctx context.Context, prompt string) ([]byte, error) {
	if v.apiKey == "" {
		return nil, apperr.Validationf("visual.generate", "GEMINI_API_KEY is empty")
	}
	body := map[string]any{
		"contents": []any{
			map[string]any{
				"parts": []any{map[string]any{"text": prompt}},
			},
		},
		"generationConfig": map[string]any{
			"responseModalities": []string{"TEXT", "IMAGE"},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperr.New(apperr.Parse, "visual.generate", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", v.baseURL, v.model)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.New(apperr.Transport, "visual.generate", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", v.apiKey)

	var out generateResponse
	if err := httpclient.DoJSON(ctx, v.http, nil, "visual.generate", req, &out); err != nil {
		return nil, err
	}
	for _, c := range out.Candidates {
		for _, p := range c.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			img, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, apperr.New(apperr.Parse, "visual.decode", err)
			}
			return img, nil
		}
	}
	return nil, apperr.New(apperr.Parse, "visual.generate", errors.New("no image in response"))
}
