package pipeline

import (
	"repair-assistant/api/internal/diagnosis"
	"repair-assistant/api/internal/products"
	"repair-assistant/api/internal/pros"
	"repair-assistant/api/internal/visual"
)

// Response is the wire shape of one run. Every slice is non-nil so the JSON
// never carries null where a list is expected.
type Response struct {
	Summary           []string           `json:"summary"`
	RepairSteps       []string           `json:"repair_steps"`
	StepVisuals       []*string          `json:"step_visuals"`
	Metadata          Metadata           `json:"metadata"`
	ContractorsNearby []pros.Contractor  `json:"contractors_nearby"`
	ProductsNeeded    []products.Product `json:"products_needed"`

	TraceID string `json:"-"`
	QueryID int64  `json:"-"`
}

type Metadata struct {
	NeedsPro    bool     `json:"needs_pro"`
	Confidence  float64  `json:"confidence"`
	PartsNeeded []string `json:"parts_needed"`
	Error       string   `json:"error,omitempty"`
}

// Aggregate assembles a Response. It copies its inputs and has no side
// effects.
func Aggregate(d diagnosis.Result, visuals []visual.StepVisual, contractors []pros.Contractor, prods []products.Product) Response {
	resp := Response{
		Summary:           []string{},
		RepairSteps:       append([]string{}, d.Steps...),
		StepVisuals:       make([]*string, 0, len(visuals)),
		ContractorsNearby: append([]pros.Contractor{}, contractors...),
		ProductsNeeded:    append([]products.Product{}, prods...),
		Metadata: Metadata{
			NeedsPro:    d.NeedsPro,
			Confidence:  d.Confidence,
			PartsNeeded: append([]string{}, d.PartsNeeded...),
			Error:       d.Error,
		},
	}
	if d.Summary != "" {
		resp.Summary = append(resp.Summary, d.Summary)
	}
	for _, v := range visuals {
		if v.ImagePath == "" {
			resp.StepVisuals = append(resp.StepVisuals, nil)
			continue
		}
		p := v.ImagePath
		resp.StepVisuals = append(resp.StepVisuals, &p)
	}
	return resp
}
