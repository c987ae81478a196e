package gallery

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/framegrid/gallery-api/internal/pkg/storage"
)

// VariantSize is one bounding-box constraint of the pipeline
type VariantSize struct {
	Label string
	Max   int // bounding box edge in pixels
}

// PipelineConfig holds variant generation settings
type PipelineConfig struct {
	SmallMax  int
	MediumMax int
	LargeMax  int
	Quality   int // JPEG quality 1-100
}

// PipelineResult carries the published URLs and the dimensions of the
// decoded original (not of any derivative).
type PipelineResult struct {
	VariantURLs VariantURLs
	Width       int
	Height      int
}

// Pipeline decodes an original and publishes three re-encoded derivatives.
// The three derivatives are independent transforms over the same input and
// are generated concurrently; the pipeline succeeds only if all three
// publish.
type Pipeline struct {
	storage storage.Storage
	sizes   []VariantSize
	quality int
}

// NewPipeline creates a variant pipeline over the given storage backend
func NewPipeline(st storage.Storage, cfg PipelineConfig) *Pipeline {
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 85
	}
	return &Pipeline{
		storage: st,
		sizes: []VariantSize{
			{Label: SizeSmall, Max: cfg.SmallMax},
			{Label: SizeMedium, Max: cfg.MediumMax},
			{Label: SizeLarge, Max: cfg.LargeMax},
		},
		quality: cfg.Quality,
	}
}

// Generate produces and publishes all variants for an entry. Partial
// success is failure: already-published derivatives are removed best-effort
// so no catalog row can ever advertise an incomplete variant map.
func (p *Pipeline) Generate(ctx context.Context, entryID uuid.UUID, original []byte) (*PipelineResult, error) {
	// AutoOrientation applies EXIF orientation to the pixel data; the
	// re-encode below strips the metadata itself.
	img, err := imaging.Decode(bytes.NewReader(original), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode original: %w", err)
	}

	bounds := img.Bounds()
	result := &PipelineResult{
		VariantURLs: make(VariantURLs, len(p.sizes)),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, size := range p.sizes {
		wg.Add(1)
		go func(size VariantSize) {
			defer wg.Done()

			url, err := p.publishOne(ctx, entryID, size, img)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("variant %s: %w", size.Label, err))
				return
			}
			result.VariantURLs[size.Label] = url
		}(size)
	}
	wg.Wait()

	if len(errs) > 0 {
		p.cleanup(ctx, entryID, result.VariantURLs)
		return nil, errs[0]
	}
	return result, nil
}

// publishOne re-encodes one bounded derivative and hands it to storage.
// Fit never upscales, so derivatives cannot exceed the original.
func (p *Pipeline) publishOne(ctx context.Context, entryID uuid.UUID, size VariantSize, img image.Image) (string, error) {
	resized := imaging.Fit(img, size.Max, size.Max, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(p.quality)); err != nil {
		return "", fmt.Errorf("failed to encode: %w", err)
	}

	key := variantKey(entryID, size.Label)
	if err := p.storage.Put(ctx, key, &buf, "image/jpeg"); err != nil {
		return "", fmt.Errorf("failed to publish: %w", err)
	}
	return p.storage.GetURL(key), nil
}

func (p *Pipeline) cleanup(ctx context.Context, entryID uuid.UUID, published VariantURLs) {
	for label := range published {
		key := variantKey(entryID, label)
		if err := p.storage.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to clean up orphaned variant")
		}
	}
}

func variantKey(entryID uuid.UUID, label string) string {
	return fmt.Sprintf("variants/%s/%s.jpg", entryID, label)
}
