package diagnosis

const (
	FallbackSummary = "Failed to analyse the issue."
)

// FallbackSteps is the generic dialog shown whenever diagnosis fails.
var FallbackSteps = []string{
	"1. Please try again",
	"2. Contact support if problem persists",
}

// Result is the typed outcome of one diagnosis call. Error is set only on
// failure, in which case the rest of the fields hold the fallback dialog.
type Result struct {
	Summary     string   `json:"summary"`
	Steps       []string `json:"steps"`
	NeedsPro    bool     `json:"needs_pro"`
	Confidence  float64  `json:"confidence"`
	PartsNeeded []string `json:"parts_needed"`
	Error       string   `json:"error,omitempty"`
}

func (r Result) Failed() bool { return r.Error != "" }

// IsFallback reports whether r carries the fallback summary text.
func (r Result) IsFallback() bool { return r.Summary == FallbackSummary }

// Fallback builds the documented failure result for err.
func Fallback(err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{
		Summary:     FallbackSummary,
		Steps:       append([]string(nil), FallbackSteps...),
		NeedsPro:    true,
		Confidence:  0.0,
		PartsNeeded: []string{},
		Error:       msg,
	}
}

// payload mirrors the JSON object the model is asked to return. Pointers let
// validation tell a missing key from a zero value.
type payload struct {
	Summary     string   `json:"summary" validate:"required"`
	Steps       []string `json:"steps" validate:"required,min=1,dive,required"`
	NeedsPro    *bool    `json:"needs_pro" validate:"required"`
	Confidence  *float64 `json:"confidence" validate:"required,gte=0,lte=1"`
	PartsNeeded []string `json:"parts_needed" validate:"omitempty,dive,required"`
}

func (p payload) result() Result {
	parts := p.PartsNeeded
	if parts == nil {
		parts = []string{}
	}
	return Result{
		Summary:     p.Summary,
		Steps:       p.Steps,
		NeedsPro:    *p.NeedsPro,
		Confidence:  *p.Confidence,
		PartsNeeded: dedupe(parts),
	}
}

// dedupe keeps the first occurrence of every part name.
func dedupe(parts []string) []string {
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
