package preprocess

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/recibo/internal/receipt"
	"github.com/MeKo-Tech/recibo/internal/testutil"
)

func TestProcess_ProducesVariants(t *testing.T) {
	p := New(DefaultConfig(), nil)
	data := testutil.ReceiptJPEG(t, 400, 800)

	variants, err := p.Process(context.Background(), receipt.Image{Data: data})
	require.NoError(t, err)
	require.NotEmpty(t, variants)

	// The light variant always comes first.
	assert.Equal(t, StrategyLight, variants[0].Strategy)

	strategies := make(map[Strategy]bool)
	for _, v := range variants {
		strategies[v.Strategy] = true
		assert.NotNil(t, v.Image)
		assert.NotEmpty(t, v.Data)
		assert.Positive(t, v.Width)
		assert.Positive(t, v.Height)
	}
	assert.True(t, strategies[StrategyPreserveColor])
	assert.True(t, strategies[StrategyThermalCrop])
}

func TestProcess_RejectsInvalidInput(t *testing.T) {
	p := New(DefaultConfig(), nil)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty buffer", nil},
		{"not an image", []byte("definitely not an image")},
		{"truncated signature", []byte{0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Process(context.Background(), receipt.Image{Data: tt.data})
			require.Error(t, err)
			assert.True(t, receipt.IsKind(err, receipt.KindInvalidInput))
		})
	}
}

func TestProcess_FallbackOnUndecodableStream(t *testing.T) {
	p := New(DefaultConfig(), nil)

	// Valid JPEG magic bytes followed by garbage: signature passes, decode fails.
	data := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("garbage payload")...)

	variants, err := p.Process(context.Background(), receipt.Image{Data: data})
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, StrategyFallback, variants[0].Strategy)
	assert.Equal(t, data, variants[0].Data)
	assert.Nil(t, variants[0].Image)
}

func TestProcess_CapsDimensions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSide = 500
	p := New(cfg, nil)

	data := testutil.ReceiptJPEG(t, 800, 1600)
	variants, err := p.Process(context.Background(), receipt.Image{Data: data})
	require.NoError(t, err)

	for _, v := range variants {
		assert.LessOrEqual(t, v.Width, 500)
		assert.LessOrEqual(t, v.Height, 500)
	}
}

func TestProcess_NeverUpscales(t *testing.T) {
	p := New(DefaultConfig(), nil)
	data := testutil.ReceiptJPEG(t, 120, 240)

	variants, err := p.Process(context.Background(), receipt.Image{Data: data})
	require.NoError(t, err)
	assert.Equal(t, 120, variants[0].Width)
	assert.Equal(t, 240, variants[0].Height)
}

func TestProcess_CanceledContext(t *testing.T) {
	p := New(DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, receipt.Image{Data: testutil.ReceiptJPEG(t, 100, 100)})
	require.Error(t, err)
	assert.True(t, receipt.IsKind(err, receipt.KindTimeout))
}

type failingEnhancer struct{}

func (failingEnhancer) Enhance(context.Context, image.Image) (image.Image, error) {
	return nil, errors.New("backend offline")
}

func TestProcess_EnhancerFailureSkipsVariant(t *testing.T) {
	p := New(DefaultConfig(), failingEnhancer{})
	data := testutil.ReceiptJPEG(t, 200, 400)

	variants, err := p.Process(context.Background(), receipt.Image{Data: data})
	require.NoError(t, err, "enhancer failure must not fail the whole step")

	for _, v := range variants {
		assert.NotEqual(t, StrategyPreserveColor, v.Strategy)
	}
}

type identityEnhancer struct{}

func (identityEnhancer) Enhance(_ context.Context, img image.Image) (image.Image, error) {
	return img, nil
}

func TestProcess_EnhancerUsedWhenAvailable(t *testing.T) {
	p := New(DefaultConfig(), identityEnhancer{})
	data := testutil.ReceiptJPEG(t, 200, 400)

	variants, err := p.Process(context.Background(), receipt.Image{Data: data})
	require.NoError(t, err)

	var hasColor bool
	for _, v := range variants {
		if v.Strategy == StrategyPreserveColor {
			hasColor = true
		}
	}
	assert.True(t, hasColor)
}

func TestProcess_VariantByteCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxVariantBytes = 64
	p := New(cfg, nil)

	_, err := p.Process(context.Background(), receipt.Image{Data: testutil.ReceiptJPEG(t, 400, 800)})
	require.Error(t, err, "light variant over the ceiling is fatal")
	assert.True(t, receipt.IsKind(err, receipt.KindInvalidInput))
}
