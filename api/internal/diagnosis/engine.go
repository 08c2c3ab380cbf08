// Package diagnosis asks a generative model to diagnose a household repair
// problem and turns its free-form answer into a Result.
package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/phuslu/log"

	"repair-assistant/api/internal/apperr"
	"repair-assistant/api/internal/media"
)

// Generator is the model backend: one prompt plus media in, raw text out.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string, items []media.Item) (string, error)
}

// Diagnoser never returns an error; failures come back as the fallback Result.
type Diagnoser interface {
	Diagnose(ctx context.Context, items []media.Item, description string) Result
}

const promptHeader = `You are Repair-GPT, a helpful assistant for diagnosing and fixing common household problems.

Look at the provided media and the problem description, then answer with STRICT JSON only, using exactly these keys:
  - "summary": string, a brief summary of the problem in 30 words or fewer
  - "steps": array of strings, the repair steps in the order they must be carried out
  - "needs_pro": boolean, true if a professional should do the repair
  - "confidence": number between 0 and 1, your confidence in the diagnosis
  - "parts_needed": array of strings, parts or products to buy (empty array if none)
`

// BuildPrompt renders the single structured instruction sent with the media.
func BuildPrompt(description string) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	if d := strings.TrimSpace(description); d != "" {
		b.WriteString("\nUser description: ")
		b.WriteString(d)
		b.WriteString("\n")
	}
	return b.String()
}

type Engine struct {
	gen      Generator
	timeout  time.Duration
	validate *validator.Validate
}

func New(gen Generator, timeout time.Duration) *Engine {
	return &Engine{gen: gen, timeout: timeout, validate: validator.New()}
}

func (e *Engine) Diagnose(ctx context.Context, items []media.Item, description string) Result {
	res, err := e.diagnose(ctx, items, description)
	if err != nil {
		log.Warn().Err(err).Str("backend", e.gen.Name()).Msg("diagnosis failed, using fallback")
		return Fallback(err)
	}
	log.Info().
		Str("backend", e.gen.Name()).
		Int("steps", len(res.Steps)).
		Bool("needs_pro", res.NeedsPro).
		Float64("confidence", res.Confidence).
		Strs("parts", res.PartsNeeded).
		Msg("diagnosis completed")
	return res
}

func (e *Engine) diagnose(ctx context.Context, items []media.Item, description string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Transportf("diagnosis.generate", "backend panic: %v", r)
		}
	}()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.gen.Generate(ctx, BuildPrompt(description), items)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return Result{}, err
		}
		return Result{}, apperr.New(apperr.Transport, "diagnosis.generate", err)
	}

	var p payload
	if err := ExtractJSON(raw, &p); err != nil {
		return Result{}, err
	}
	if err := e.validate.Struct(p); err != nil {
		return Result{}, apperr.New(apperr.Parse, "diagnosis.validate", fmt.Errorf("response does not match schema: %w", err))
	}
	return p.result(), nil
}

// Retrying repeats a diagnosis once, after Delay, when the first answer is the
// fallback. The second answer is final either way.
type Retrying struct {
	Next  Diagnoser
	Delay time.Duration
}

func WithRetry(next Diagnoser, delay time.Duration) *Retrying {
	return &Retrying{Next: next, Delay: delay}
}

func (r *Retrying) Diagnose(ctx context.Context, items []media.Item, description string) Result {
	res := r.Next.Diagnose(ctx, items, description)
	if !res.IsFallback() {
		return res
	}
	log.Info().Dur("delay", r.Delay).Str("error", res.Error).Msg("diagnosis returned fallback, retrying once")

	t := time.NewTimer(r.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return res
	case <-t.C:
	}
	return r.Next.Diagnose(ctx, items, description)
}
