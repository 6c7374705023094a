// Package imaging turns a raw uploaded photo into the three derivative images
// the app serves: a square thumbnail for grid views plus medium and full sizes
// that keep the original proportions.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"

	img "github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/StevenACZ/peso-tracker-backend/internal/errs"
	"github.com/StevenACZ/peso-tracker-backend/internal/models"

	// WebP uploads are decodable even though output is always JPEG.
	_ "golang.org/x/image/webp"
)

const (
	// OutputExt is the extension of every derivative. JPEG decodes everywhere
	// and compresses well at the quality tiers below.
	OutputExt = "jpg"

	// OutputContentType matches OutputExt.
	OutputContentType = "image/jpeg"

	// preShrinkBound caps the working resolution before deriving final sizes,
	// so a 50-megapixel upload does not hold three full-size copies in memory.
	preShrinkBound = 3200
)

type sizeSpec struct {
	label   models.SizeLabel
	px      int
	quality int
	cover   bool
}

// Dimensions are 2x the display size for retina screens. Quality drops as the
// target grows: small images tolerate high quality cheaply, the full size must
// stay small in bytes.
var sizeSpecs = [3]sizeSpec{
	{label: models.SizeThumbnail, px: 300, quality: 85, cover: true},
	{label: models.SizeMedium, px: 800, quality: 80},
	{label: models.SizeFull, px: 1600, quality: 75},
}

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Derivatives holds the three encoded buffers for one upload.
type Derivatives struct {
	Thumbnail []byte
	Medium    []byte
	Full      []byte
}

// ForLabel returns the buffer for a size label.
func (d *Derivatives) ForLabel(label models.SizeLabel) []byte {
	switch label {
	case models.SizeThumbnail:
		return d.Thumbnail
	case models.SizeMedium:
		return d.Medium
	default:
		return d.Full
	}
}

// Pipeline produces resized, re-encoded derivatives from raw upload bytes.
// It is stateless apart from its logger and safe for concurrent use.
type Pipeline struct {
	log *zap.Logger
}

func NewPipeline(log *zap.Logger) *Pipeline {
	return &Pipeline{log: log}
}

// ProduceDerivatives validates the upload and generates all three sizes
// concurrently. Either every derivative is returned or none is: a failure in
// any size fails the whole set.
func (p *Pipeline) ProduceDerivatives(ctx context.Context, raw []byte, contentType string, maxBytes int64) (*Derivatives, error) {
	if !allowedContentTypes[contentType] {
		return nil, fmt.Errorf("%w: unsupported content type %q", errs.ErrInvalidInput, contentType)
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", errs.ErrTooLarge, len(raw), maxBytes)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty upload", errs.ErrInvalidInput)
	}

	src, err := img.Decode(bytes.NewReader(raw), img.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode failed: %v", errs.ErrInvalidInput, err)
	}

	src = p.preShrink(src)

	var (
		wg      sync.WaitGroup
		buffers [3][]byte
		errors  [3]error
	)
	for i, spec := range sizeSpecs {
		wg.Add(1)
		go func(i int, spec sizeSpec) {
			defer wg.Done()
			if ctx.Err() != nil {
				errors[i] = ctx.Err()
				return
			}
			buffers[i], errors[i] = encodeSize(src, spec)
		}(i, spec)
	}
	wg.Wait()

	for _, err := range errors {
		if err != nil {
			return nil, fmt.Errorf("derivative generation failed: %w", err)
		}
	}

	p.log.Debug("processed image",
		zap.Int("original_bytes", len(raw)),
		zap.Int("thumbnail_bytes", len(buffers[0])),
		zap.Int("medium_bytes", len(buffers[1])),
		zap.Int("full_bytes", len(buffers[2])),
	)

	return &Derivatives{Thumbnail: buffers[0], Medium: buffers[1], Full: buffers[2]}, nil
}

// preShrink bounds the working resolution of very large sources. Best effort:
// if shrinking yields nothing usable the original image is kept.
func (p *Pipeline) preShrink(src image.Image) image.Image {
	b := src.Bounds()
	if b.Dx() <= preShrinkBound && b.Dy() <= preShrinkBound {
		return src
	}
	shrunk := img.Fit(src, preShrinkBound, preShrinkBound, img.Lanczos)
	if shrunk == nil || shrunk.Bounds().Empty() {
		p.log.Warn("pre-shrink produced empty image, keeping original",
			zap.Int("width", b.Dx()), zap.Int("height", b.Dy()))
		return src
	}
	return shrunk
}

func encodeSize(src image.Image, spec sizeSpec) ([]byte, error) {
	var resized image.Image
	if spec.cover {
		// Square center crop for the grid thumbnail.
		resized = img.Fill(src, spec.px, spec.px, img.Center, img.Lanczos)
	} else if src.Bounds().Dx() > spec.px || src.Bounds().Dy() > spec.px {
		// Fit inside the box, preserving aspect ratio.
		resized = img.Fit(src, spec.px, spec.px, img.Lanczos)
	} else {
		// Never upscale beyond the original.
		resized = src
	}

	buf := new(bytes.Buffer)
	if err := img.Encode(buf, resized, img.JPEG, img.JPEGQuality(spec.quality)); err != nil {
		return nil, fmt.Errorf("encode %s: %w", spec.label, err)
	}
	return buf.Bytes(), nil
}
