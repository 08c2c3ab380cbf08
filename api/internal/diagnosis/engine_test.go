package diagnosis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repair-assistant/api/internal/apperr"
	"repair-assistant/api/internal/media"
)

// scriptedGen replays canned answers in order and records every prompt.
type scriptedGen struct {
	answers []string
	errs    []error
	panicky bool
	prompts []string
	items   [][]media.Item
}

func (g *scriptedGen) Name() string { return "scripted" }
func (g *scriptedGen) Generate(ctx context.Context, prompt string, items []media.Item) (string, error) {
	if g.panicky {
		panic("sdk exploded")
	}
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	g.items = append(g.items, items)
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	ans := ""
	if i < len(g.answers) {
		ans = g.answers[i]
	}
	return ans, err
}

const goodAnswer = `Sure! Here is the diagnosis:
{"summary": "Worn cartridge in kitchen faucet causes drip.",
 "steps": ["Shut off water supply", "Remove handle", "Replace cartridge"],
 "needs_pro": false, "confidence": 0.82,
 "parts_needed": ["faucet cartridge", "plumber's grease", "faucet cartridge"]}
Let me know if you need anything else.`

func expectedFallback(t *testing.T, r Result) {
	t.Helper()
	assert.Equal(t, "Failed to analyse the issue.", r.Summary)
	assert.Equal(t, []string{"1. Please try again", "2. Contact support if problem persists"}, r.Steps)
	assert.True(t, r.NeedsPro)
	assert.Equal(t, 0.0, r.Confidence)
	assert.Equal(t, []string{}, r.PartsNeeded)
	assert.NotEmpty(t, r.Error)
}

func TestDiagnoseParsesWrappedJSON(t *testing.T) {
	gen := &scriptedGen{answers: []string{goodAnswer}}
	res := New(gen, time.Second).Diagnose(context.Background(), nil, "leaky kitchen faucet")

	assert.False(t, res.Failed())
	assert.Equal(t, "Worn cartridge in kitchen faucet causes drip.", res.Summary)
	assert.Equal(t, []string{"Shut off water supply", "Remove handle", "Replace cartridge"}, res.Steps)
	assert.False(t, res.NeedsPro)
	assert.InDelta(t, 0.82, res.Confidence, 1e-9)
	assert.Equal(t, []string{"faucet cartridge", "plumber's grease"}, res.PartsNeeded)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "30 words or fewer")
	assert.Contains(t, gen.prompts[0], "User description: leaky kitchen faucet")
}

func TestDiagnosePassesMediaThrough(t *testing.T) {
	it, err := media.FromBytes(media.Audio, []byte("ID3"), "drip.mp3")
	require.NoError(t, err)
	gen := &scriptedGen{answers: []string{goodAnswer}}

	New(gen, 0).Diagnose(context.Background(), []media.Item{it}, "")
	require.Len(t, gen.items, 1)
	require.Len(t, gen.items[0], 1)
	assert.Equal(t, media.Audio, gen.items[0][0].Kind())
	assert.NotContains(t, gen.prompts[0], "User description")
}

func TestDiagnoseMissingPartsDefaultsEmpty(t *testing.T) {
	gen := &scriptedGen{answers: []string{`{"summary":"s","steps":["a"],"needs_pro":true,"confidence":1}`}}
	res := New(gen, 0).Diagnose(context.Background(), nil, "x")
	assert.False(t, res.Failed())
	assert.Equal(t, []string{}, res.PartsNeeded)
}

func TestDiagnoseFallbacks(t *testing.T) {
	cases := map[string]*scriptedGen{
		"transport error":     {errs: []error{errors.New("dial tcp: timeout")}},
		"no json":             {answers: []string{"I cannot help with that."}},
		"broken json":         {answers: []string{`{"summary": "x", "steps": [}`}},
		"wrong type":          {answers: []string{`{"summary":"s","steps":["a"],"needs_pro":"yes","confidence":0.5}`}},
		"confidence too high": {answers: []string{`{"summary":"s","steps":["a"],"needs_pro":true,"confidence":1.5}`}},
		"missing needs_pro":   {answers: []string{`{"summary":"s","steps":["a"],"confidence":0.5}`}},
		"no steps":            {answers: []string{`{"summary":"s","steps":[],"needs_pro":true,"confidence":0.5}`}},
		"backend panic":       {panicky: true},
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			res := New(gen, time.Second).Diagnose(context.Background(), nil, "desc")
			expectedFallback(t, res)
			assert.True(t, res.IsFallback())
		})
	}
}

func TestDiagnoseFallbackCarriesCause(t *testing.T) {
	gen := &scriptedGen{errs: []error{errors.New("quota exceeded")}}
	res := New(gen, 0).Diagnose(context.Background(), nil, "desc")
	assert.Contains(t, res.Error, "quota exceeded")
}

func TestExtractJSON(t *testing.T) {
	var v map[string]any
	require.NoError(t, ExtractJSON("```json\n{\"a\": {\"b\": 1}}\n```", &v))
	assert.Equal(t, map[string]any{"a": map[string]any{"b": float64(1)}}, v)

	err := ExtractJSON("} backwards {", &v)
	assert.True(t, apperr.Is(err, apperr.Parse))

	err = ExtractJSON("no braces", &v)
	assert.True(t, apperr.Is(err, apperr.Parse))

	// two objects: the span between them is not valid JSON, no repair attempted
	err = ExtractJSON(`{"a":1} and {"b":2}`, &v)
	assert.True(t, apperr.Is(err, apperr.Parse))
}

type countingDiagnoser struct {
	results []Result
	calls   int
}

func (c *countingDiagnoser) Diagnose(ctx context.Context, items []media.Item, description string) Result {
	r := c.results[c.calls]
	c.calls++
	return r
}

func TestRetryingRetriesOnceOnFallback(t *testing.T) {
	ok := Result{Summary: "fixed", Steps: []string{"a"}, PartsNeeded: []string{}}
	inner := &countingDiagnoser{results: []Result{Fallback(errors.New("x")), ok}}

	res := WithRetry(inner, time.Millisecond).Diagnose(context.Background(), nil, "d")
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, ok, res)
}

func TestRetryingAcceptsSecondFallback(t *testing.T) {
	inner := &countingDiagnoser{results: []Result{Fallback(errors.New("first")), Fallback(errors.New("second")), {}}}

	res := WithRetry(inner, time.Millisecond).Diagnose(context.Background(), nil, "d")
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, "second", res.Error)
}

func TestRetryingSkipsOnSuccess(t *testing.T) {
	inner := &countingDiagnoser{results: []Result{{Summary: "ok"}}}
	WithRetry(inner, time.Hour).Diagnose(context.Background(), nil, "d")
	assert.Equal(t, 1, inner.calls)
}

func TestRetryingHonorsCancellation(t *testing.T) {
	inner := &countingDiagnoser{results: []Result{Fallback(errors.New("x")), {Summary: "late"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := WithRetry(inner, time.Hour).Diagnose(ctx, nil, "d")
	assert.Equal(t, 1, inner.calls)
	assert.True(t, res.IsFallback())
}

func TestBuildPromptTrimsDescription(t *testing.T) {
	p := BuildPrompt("   ")
	assert.False(t, strings.Contains(p, "User description"))
	assert.Contains(t, p, `"parts_needed"`)
}
