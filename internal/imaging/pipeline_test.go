package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/StevenACZ/peso-tracker-backend/internal/errs"
)

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 10 {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, jpeg.Encode(buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func decodeBounds(t *testing.T, data []byte) image.Rectangle {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	return img.Bounds()
}

func TestProduceDerivatives(t *testing.T) {
	p := NewPipeline(zap.NewNop())

	raw := testJPEG(t, 1200, 900)
	derivs, err := p.ProduceDerivatives(context.Background(), raw, "image/jpeg", 10<<20)
	require.NoError(t, err)

	require.NotEmpty(t, derivs.Thumbnail)
	require.NotEmpty(t, derivs.Medium)
	require.NotEmpty(t, derivs.Full)

	thumb := decodeBounds(t, derivs.Thumbnail)
	assert.Equal(t, 300, thumb.Dx())
	assert.Equal(t, 300, thumb.Dy())

	medium := decodeBounds(t, derivs.Medium)
	assert.LessOrEqual(t, medium.Dx(), 800)
	assert.LessOrEqual(t, medium.Dy(), 800)

	// 1200x900 is already under the full-size bound, so it stays untouched.
	full := decodeBounds(t, derivs.Full)
	assert.Equal(t, 1200, full.Dx())
	assert.Equal(t, 900, full.Dy())
}

func TestProduceDerivativesPNG(t *testing.T) {
	p := NewPipeline(zap.NewNop())

	derivs, err := p.ProduceDerivatives(context.Background(), testPNG(t, 640, 480), "image/png", 10<<20)
	require.NoError(t, err)

	thumb := decodeBounds(t, derivs.Thumbnail)
	assert.Equal(t, 300, thumb.Dx())
	assert.Equal(t, 300, thumb.Dy())
}

func TestNeverUpscalesLargerSizes(t *testing.T) {
	p := NewPipeline(zap.NewNop())

	derivs, err := p.ProduceDerivatives(context.Background(), testJPEG(t, 200, 150), "image/jpeg", 10<<20)
	require.NoError(t, err)

	medium := decodeBounds(t, derivs.Medium)
	assert.Equal(t, 200, medium.Dx())
	assert.Equal(t, 150, medium.Dy())

	full := decodeBounds(t, derivs.Full)
	assert.Equal(t, 200, full.Dx())
	assert.Equal(t, 150, full.Dy())
}

func TestPreShrinkBoundsLargeSources(t *testing.T) {
	p := NewPipeline(zap.NewNop())

	derivs, err := p.ProduceDerivatives(context.Background(), testJPEG(t, 4000, 3000), "image/jpeg", 20<<20)
	require.NoError(t, err)

	full := decodeBounds(t, derivs.Full)
	assert.LessOrEqual(t, full.Dx(), 1600)
	assert.LessOrEqual(t, full.Dy(), 1600)

	thumb := decodeBounds(t, derivs.Thumbnail)
	assert.Equal(t, 300, thumb.Dx())
	assert.Equal(t, 300, thumb.Dy())
}

func TestRejectsUnsupportedContentType(t *testing.T) {
	p := NewPipeline(zap.NewNop())

	_, err := p.ProduceDerivatives(context.Background(), testJPEG(t, 100, 100), "application/pdf", 10<<20)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestRejectsCorruptData(t *testing.T) {
	p := NewPipeline(zap.NewNop())

	_, err := p.ProduceDerivatives(context.Background(), []byte("definitely not a jpeg"), "image/jpeg", 10<<20)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = p.ProduceDerivatives(context.Background(), nil, "image/jpeg", 10<<20)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestRejectsOversizedUpload(t *testing.T) {
	p := NewPipeline(zap.NewNop())

	raw := testJPEG(t, 800, 600)
	_, err := p.ProduceDerivatives(context.Background(), raw, "image/jpeg", int64(len(raw)-1))
	assert.ErrorIs(t, err, errs.ErrTooLarge)
}

func TestRespectsCancellation(t *testing.T) {
	p := NewPipeline(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProduceDerivatives(ctx, testJPEG(t, 800, 600), "image/jpeg", 10<<20)
	assert.Error(t, err)
}
