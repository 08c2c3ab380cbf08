// Package pipeline runs one repair request end to end: diagnosis first, then
// visuals, contractors and products side by side, then aggregation.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"repair-assistant/api/internal/apperr"
	"repair-assistant/api/internal/diagnosis"
	"repair-assistant/api/internal/geo"
	"repair-assistant/api/internal/media"
	"repair-assistant/api/internal/products"
	"repair-assistant/api/internal/pros"
	"repair-assistant/api/internal/visual"
)

const MaxRadiusM = 50000

type Visualizer interface {
	VisualizeAll(ctx context.Context, runID string, steps []string) []visual.StepVisual
}

type LocationResolver interface {
	Resolve(ctx context.Context, explicit string) (geo.Coordinates, bool)
}

type ProFinder interface {
	FindNearby(ctx context.Context, category string, origin geo.Coordinates, radiusM, topK int) ([]pros.Contractor, error)
}

type ProductFinder interface {
	SearchAll(ctx context.Context, parts []string, origin geo.Coordinates) []products.Product
}

// Record is everything a Sink persists for one run.
type Record struct {
	TraceID       string
	ChatID        int64
	QueryText     string
	RoomImagePath string
	Diagnosis     diagnosis.Result
	Visuals       []visual.StepVisual
	Contractors   []pros.Contractor
	Products      []products.Product
}

// Sink stores a finished run and returns its query id.
type Sink interface {
	SaveRun(ctx context.Context, rec Record) (int64, error)
}

type Request struct {
	Description string
	// Media holds already normalized items (uploads); Paths are ingested from
	// disk. Both may be set.
	Media    []media.Item
	Paths    map[media.Kind]string
	Location string
	RadiusM  int
	// ChatID identifies the chat that asked, when there is one. Zero means
	// no owner.
	ChatID int64
}

// Pipeline wires the stages together. Visuals, Sink and Mirror are optional.
type Pipeline struct {
	Diagnoser diagnosis.Diagnoser
	Visuals   Visualizer
	Resolver  LocationResolver
	Pros      ProFinder
	Products  ProductFinder
	Sink      Sink
	Mirror    visual.Mirror

	TopK           int
	DefaultRadiusM int
}

// Validate rejects requests that cannot produce a diagnosis. It makes no
// network calls.
func (r Request) Validate() error {
	if len(r.Media) == 0 && len(r.Paths) == 0 && strings.TrimSpace(r.Description) == "" {
		return apperr.Validationf("pipeline.validate", "a description or at least one media file is required")
	}
	if r.RadiusM < 0 || r.RadiusM > MaxRadiusM {
		return apperr.Validationf("pipeline.validate", "radius must be 0 (default) or 1..%d meters, got %d", MaxRadiusM, r.RadiusM)
	}
	for k := range r.Paths {
		if _, ok := media.ParseKind(string(k)); !ok {
			return apperr.Validationf("pipeline.validate", "unknown media kind %q", k)
		}
	}
	return nil
}

// Run executes one request. The returned error is non-nil only for
// validation failures; every other problem shows up inside the Response.
func (p *Pipeline) Run(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	items := append([]media.Item(nil), req.Media...)
	if len(req.Paths) > 0 {
		loaded, err := media.Ingest(req.Paths)
		if err != nil {
			return Response{}, apperr.New(apperr.Validation, "pipeline.ingest", err)
		}
		items = append(items, loaded...)
	}

	traceID := uuid.NewString()
	radius := req.RadiusM
	if radius == 0 {
		radius = p.DefaultRadiusM
	}
	log.Info().
		Str("trace_id", traceID).
		Int("media", len(items)).
		Bool("has_description", strings.TrimSpace(req.Description) != "").
		Str("location", req.Location).
		Int("radius", radius).
		Msg("repair run started")

	diag := p.Diagnoser.Diagnose(ctx, items, req.Description)

	origin, located := geo.Coordinates{}, false
	if p.Resolver != nil {
		origin, located = p.Resolver.Resolve(ctx, req.Location)
	}
	if !located {
		log.Info().Str("trace_id", traceID).Msg("no location resolved, skipping contractor and product lookups")
	}

	var (
		visuals     = placeholders(len(diag.Steps))
		contractors = []pros.Contractor{}
		prods       = []products.Product{}
	)

	// Each task records its own failure and returns nil so that no stage can
	// cancel another.
	var g errgroup.Group
	if p.Visuals != nil && !diag.Failed() && len(diag.Steps) > 0 {
		g.Go(isolate(traceID, "visuals", func() error {
			visuals = p.Visuals.VisualizeAll(ctx, traceID, diag.Steps)
			return nil
		}))
	}
	if located && p.Pros != nil {
		category := pros.Classify(classifyText(diag, req.Description))
		g.Go(isolate(traceID, "contractors", func() error {
			cs, err := p.Pros.FindNearby(ctx, category, origin, radius, p.TopK)
			if err != nil {
				return err
			}
			contractors = cs
			return nil
		}))
	}
	if located && p.Products != nil && len(diag.PartsNeeded) > 0 {
		g.Go(isolate(traceID, "products", func() error {
			prods = p.Products.SearchAll(ctx, diag.PartsNeeded, origin)
			return nil
		}))
	}
	_ = g.Wait()

	resp := Aggregate(diag, visuals, contractors, prods)
	resp.TraceID = traceID

	if p.Mirror != nil {
		visual.MirrorAll(ctx, p.Mirror, traceID, visuals)
	}
	if p.Sink != nil {
		id, err := p.Sink.SaveRun(ctx, Record{
			TraceID:       traceID,
			ChatID:        req.ChatID,
			QueryText:     req.Description,
			RoomImagePath: req.Paths[media.Image],
			Diagnosis:     diag,
			Visuals:       visuals,
			Contractors:   contractors,
			Products:      prods,
		})
		if err != nil {
			log.Error().Err(err).Str("trace_id", traceID).Msg("failed to persist run")
		} else {
			resp.QueryID = id
		}
	}

	log.Info().
		Str("trace_id", traceID).
		Int64("query_id", resp.QueryID).
		Int("steps", len(resp.RepairSteps)).
		Int("contractors", len(resp.ContractorsNearby)).
		Int("products", len(resp.ProductsNeeded)).
		Bool("fallback", diag.Failed()).
		Msg("repair run finished")
	return resp, nil
}

// classifyText prefers the model's summary; after a failed diagnosis the
// user's own words are all we have.
func classifyText(d diagnosis.Result, description string) string {
	if d.Failed() {
		return description
	}
	return d.Summary
}

func placeholders(n int) []visual.StepVisual {
	out := make([]visual.StepVisual, n)
	for i := range out {
		out[i].StepIndex = i + 1
	}
	return out
}

// isolate turns a stage failure or panic into a logged partial result.
func isolate(traceID, stage string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
			if err != nil {
				log.Warn().
					Err(apperr.New(apperr.Partial, "pipeline."+stage, err)).
					Str("trace_id", traceID).
					Msg("stage degraded to empty")
			}
			err = nil
		}()
		return fn()
	}
}
