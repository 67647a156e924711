package runner

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"path/filepath"
	"strings"

	"github.com/vidhive/vidhive/internal/storage"
	"github.com/vidhive/vidhive/pkg/models"
)

// classifierSampleBytes caps how much of the object the analyze stage
// reads and forwards to the classifier.
const classifierSampleBytes = 256 * 1024

// StageResult carries the record fields a stage produced. Progress is the
// stage's completion mark; the runner never lets it move backwards.
type StageResult struct {
	Progress       int
	DurationSecs   *float64
	ThumbnailPath  *string
	Classification string
}

// Stage is a single step of the processing pipeline. Run must respect ctx
// cancellation; a returned error fails the whole job.
type Stage interface {
	Name() string
	Run(ctx context.Context, video *models.Video) (StageResult, error)
}

// ingestStage verifies the stored object is readable and records an
// estimated duration.
type ingestStage struct {
	gateway storage.Gateway
}

func (s *ingestStage) Name() string { return "ingest" }

func (s *ingestStage) Run(ctx context.Context, video *models.Video) (StageResult, error) {
	body, err := s.gateway.Get(ctx, video.StoragePath)
	if err != nil {
		return StageResult{}, fmt.Errorf("opening object %s: %w", video.StoragePath, err)
	}
	defer body.Close()

	n, err := io.Copy(io.Discard, io.LimitReader(body, classifierSampleBytes))
	if err != nil {
		return StageResult{}, fmt.Errorf("reading object %s: %w", video.StoragePath, err)
	}
	if n == 0 {
		return StageResult{}, fmt.Errorf("object %s is empty", video.StoragePath)
	}

	// Duration is estimated from byte size at a nominal bitrate until a
	// container demuxer replaces this stage's probe.
	const nominalBitsPerSecond = 2_000_000
	duration := float64(video.ByteSize) * 8 / nominalBitsPerSecond

	return StageResult{Progress: 40, DurationSecs: &duration}, nil
}

// thumbnailStage stores a poster image next to the source object. Frame
// extraction is delegated to external tooling; the pipeline writes a
// placeholder poster so the record always has a renderable thumbnail.
type thumbnailStage struct {
	gateway storage.Gateway
}

func (s *thumbnailStage) Name() string { return "thumbnail" }

func (s *thumbnailStage) Run(ctx context.Context, video *models.Video) (StageResult, error) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 9))
	for y := 0; y < 9; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.Gray{Y: 0x22})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 60}); err != nil {
		return StageResult{}, fmt.Errorf("encoding poster: %w", err)
	}

	path := thumbnailPathFor(video.StoragePath)
	if err := s.gateway.Put(ctx, path, &buf, int64(buf.Len()), "image/jpeg"); err != nil {
		return StageResult{}, fmt.Errorf("storing poster %s: %w", path, err)
	}

	return StageResult{Progress: 70, ThumbnailPath: &path}, nil
}

func thumbnailPathFor(storagePath string) string {
	ext := filepath.Ext(storagePath)
	return strings.TrimSuffix(storagePath, ext) + "_thumb.jpg"
}

// analyzeStage samples the object and asks the classifier for a decision.
// It is the terminal stage: its result carries the classification that
// lets the runner mark the job completed.
type analyzeStage struct {
	gateway    storage.Gateway
	classifier models.Classifier
}

func (s *analyzeStage) Name() string { return "analyze" }

func (s *analyzeStage) Run(ctx context.Context, video *models.Video) (StageResult, error) {
	body, err := s.gateway.Get(ctx, video.StoragePath)
	if err != nil {
		return StageResult{}, fmt.Errorf("opening object %s: %w", video.StoragePath, err)
	}
	defer body.Close()

	sample, err := io.ReadAll(io.LimitReader(body, classifierSampleBytes))
	if err != nil {
		return StageResult{}, fmt.Errorf("sampling object %s: %w", video.StoragePath, err)
	}

	decision, err := s.classifier.Classify(ctx, models.ClassificationRequest{Video: *video, Sample: sample})
	if err != nil {
		return StageResult{}, fmt.Errorf("classifier %s: %w", s.classifier.Name(), err)
	}

	return StageResult{Progress: 100, Classification: decision}, nil
}
