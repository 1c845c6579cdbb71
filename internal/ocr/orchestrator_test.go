package ocr

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/recibo/internal/preprocess"
	"github.com/MeKo-Tech/recibo/internal/receipt"
)

const sampleText = "2x Coffee 3.50 7.00\nTOTAL 7.00"

// fakeEngine scripts one outcome per (variant, mode) invocation, in order.
type fakeEngine struct {
	mu       sync.Mutex
	outcomes []fakeOutcome
	calls    int
}

type fakeOutcome struct {
	text  string
	conf  float64
	err   error
	delay time.Duration
}

func (f *fakeEngine) Recognize(ctx context.Context, variant preprocess.Variant, mode SegMode) (PassResult, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()

	var out fakeOutcome
	if i < len(f.outcomes) {
		out = f.outcomes[i]
	}
	if out.delay > 0 {
		select {
		case <-time.After(out.delay):
		case <-ctx.Done():
			return PassResult{}, ctx.Err()
		}
	}
	if out.err != nil {
		return PassResult{}, out.err
	}
	return PassResult{Text: out.text, Confidence: out.conf, Variant: variant.Strategy, SegMode: mode}, nil
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func variants(n int) []preprocess.Variant {
	out := make([]preprocess.Variant, n)
	for i := range out {
		out[i] = preprocess.Variant{Strategy: preprocess.StrategyLight, Data: []byte{0xFF}}
	}
	return out
}

func TestRun_NilEngine(t *testing.T) {
	o := NewOrchestrator(DefaultConfig(), nil)
	results, err := o.Run(context.Background(), variants(2))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRun_CollectsAllPasses(t *testing.T) {
	engine := &fakeEngine{outcomes: []fakeOutcome{
		{text: sampleText, conf: 0.5},
		{text: sampleText, conf: 0.6},
		{text: sampleText, conf: 0.55},
		{text: sampleText, conf: 0.65},
	}}
	o := NewOrchestrator(DefaultConfig(), engine)

	results, err := o.Run(context.Background(), variants(2))
	require.NoError(t, err)
	assert.Len(t, results, 4, "two variants times two segmentation modes")
}

func TestRun_EarlyExitOnConfidentPass(t *testing.T) {
	engine := &fakeEngine{outcomes: []fakeOutcome{
		{text: sampleText, conf: 0.95},
	}}
	o := NewOrchestrator(DefaultConfig(), engine)

	results, err := o.Run(context.Background(), variants(3))
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, engine.callCount(), "no further passes after a confident one")
}

func TestRun_SkipsFailedAndShortPasses(t *testing.T) {
	engine := &fakeEngine{outcomes: []fakeOutcome{
		{err: errors.New("engine crashed")},
		{text: "ab"},
		{text: sampleText, conf: 0.6},
		{text: sampleText, conf: 0.6},
	}}
	o := NewOrchestrator(DefaultConfig(), engine)

	results, err := o.Run(context.Background(), variants(2))
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRun_AllPassesFailYieldsEmptySet(t *testing.T) {
	engine := &fakeEngine{outcomes: []fakeOutcome{
		{err: errors.New("boom")},
		{err: errors.New("boom")},
	}}
	o := NewOrchestrator(DefaultConfig(), engine)

	results, err := o.Run(context.Background(), variants(1))
	require.NoError(t, err, "engine failures are not request failures")
	assert.Empty(t, results)
}

func TestRun_PassTimeoutSkipsToNextStrategy(t *testing.T) {
	engine := &fakeEngine{outcomes: []fakeOutcome{
		{text: sampleText, conf: 0.9, delay: time.Second},
		{text: sampleText, conf: 0.6},
	}}
	cfg := DefaultConfig()
	cfg.PassTimeout = 20 * time.Millisecond
	o := NewOrchestrator(cfg, engine)

	results, err := o.Run(context.Background(), variants(1))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.6, results[0].Confidence, 0.001)
}

func TestRun_OverallBudgetReturnsGatheredResults(t *testing.T) {
	engine := &fakeEngine{outcomes: []fakeOutcome{
		{text: sampleText, conf: 0.6},
		{text: sampleText, conf: 0.6, delay: 200 * time.Millisecond},
		{text: sampleText, conf: 0.6},
		{text: sampleText, conf: 0.6},
	}}
	cfg := DefaultConfig()
	cfg.OverallTimeout = 100 * time.Millisecond
	o := NewOrchestrator(cfg, engine)

	results, err := o.Run(context.Background(), variants(2))
	require.NoError(t, err, "internal budget exhaustion is not an error")
	assert.Len(t, results, 1)
}

func TestRun_CallerCancellationIsFatal(t *testing.T) {
	engine := &fakeEngine{outcomes: []fakeOutcome{
		{text: sampleText, conf: 0.6},
		{text: sampleText, conf: 0.6, delay: 500 * time.Millisecond},
	}}
	o := NewOrchestrator(DefaultConfig(), engine)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	results, err := o.Run(ctx, variants(2))
	require.Error(t, err)
	assert.True(t, receipt.IsKind(err, receipt.KindTimeout))
	assert.Len(t, results, 1, "gathered passes survive the cancellation")
}

func TestRun_MinTextCharsConfigurable(t *testing.T) {
	short := strings.Repeat("a", 5)
	engine := &fakeEngine{outcomes: []fakeOutcome{
		{text: short, conf: 0.9},
	}}
	cfg := DefaultConfig()
	cfg.MinTextChars = 3
	o := NewOrchestrator(cfg, engine)

	results, err := o.Run(context.Background(), variants(1))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, short, results[0].Text)
}
