// Package runner drives uploaded videos through the processing pipeline.
// Each job runs on its own goroutine under a concurrency cap; every durable
// state change is written with optimistic concurrency and announced on the
// change feed.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vidhive/vidhive/internal/config"
	"github.com/vidhive/vidhive/internal/feed"
	"github.com/vidhive/vidhive/internal/storage"
	"github.com/vidhive/vidhive/internal/store"
	"github.com/vidhive/vidhive/pkg/models"
)

const casRetries = 3

type Runner struct {
	store        store.Store
	feed         feed.Feed
	gateway      storage.Gateway
	stages       []Stage
	stageTimeout time.Duration
	sem          chan struct{}
	wg           sync.WaitGroup
}

// New builds a Runner with the standard pipeline: ingest, thumbnail, analyze.
func New(st store.Store, fd feed.Feed, gw storage.Gateway, classifier models.Classifier, cfg config.ProcessingConfig) *Runner {
	return &Runner{
		store:   st,
		feed:    fd,
		gateway: gw,
		stages: []Stage{
			&ingestStage{gateway: gw},
			&thumbnailStage{gateway: gw},
			&analyzeStage{gateway: gw, classifier: classifier},
		},
		stageTimeout: cfg.StageTimeout,
		sem:          make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Dispatch hands a freshly uploaded video to the pipeline and returns
// immediately. The job runs on a background context so it outlives the
// upload request that spawned it.
func (r *Runner) Dispatch(video *models.Video) {
	v := *video
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.sem <- struct{}{}
		defer func() { <-r.sem }()
		r.process(context.Background(), &v)
	}()
}

// Wait blocks until all in-flight jobs finish. Used during shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) process(ctx context.Context, video *models.Video) {
	current, ok := r.begin(ctx, video)
	if !ok {
		return
	}

	for _, stage := range r.stages {
		stageCtx, cancel := context.WithTimeout(ctx, r.stageTimeout)
		result, err := stage.Run(stageCtx, current)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("timed out after %s", r.stageTimeout)
			}
			r.fail(ctx, current, stage.Name(), err)
			return
		}

		next, err := r.applyResult(ctx, current, result)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Deleted mid-processing. The delete cleaned up what the
				// record named; anything this stage stored but never
				// recorded would be orphaned, so remove it here.
				if result.ThumbnailPath != nil {
					r.discard(*result.ThumbnailPath)
				}
				slog.Info("video deleted during processing", "video_id", current.ID, "stage", stage.Name())
				return
			}
			slog.Error("recording stage result", "video_id", current.ID, "stage", stage.Name(), "error", err)
			r.fail(ctx, current, stage.Name(), err)
			return
		}
		current = next
	}
}

// begin moves the record from uploading to processing. Returns false when
// the job no longer needs running (deleted, or already picked up).
func (r *Runner) begin(ctx context.Context, video *models.Video) (*models.Video, bool) {
	expected := video.Version
	for attempt := 0; attempt <= casRetries; attempt++ {
		updated, err := r.store.UpdateVideo(ctx, video.ID,
			store.WithExpectedVersion(expected),
			store.WithStatus(models.VideoStatusProcessing),
			store.WithProgress(10),
		)
		if err == nil {
			r.publish(ctx, updated)
			return updated, true
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, false
		}
		if errors.Is(err, store.ErrConflict) {
			fresh, ferr := r.store.GetVideo(ctx, video.ID, video.TenantID)
			if ferr != nil {
				return nil, false
			}
			if fresh.Status != models.VideoStatusUploading {
				// Another worker owns the job.
				return nil, false
			}
			expected = fresh.Version
			continue
		}
		slog.Error("starting processing", "video_id", video.ID, "error", err)
		return nil, false
	}
	return nil, false
}

// applyResult writes a stage's output. Conflicts from concurrent metadata
// edits are resolved by re-reading and reapplying against the fresh version.
func (r *Runner) applyResult(ctx context.Context, current *models.Video, result StageResult) (*models.Video, error) {
	expected := current.Version
	for attempt := 0; ; attempt++ {
		opts := []store.VideoUpdateOption{
			store.WithExpectedVersion(expected),
			store.WithProgress(result.Progress),
		}
		if result.DurationSecs != nil {
			opts = append(opts, store.WithDurationSecs(*result.DurationSecs))
		}
		if result.ThumbnailPath != nil {
			opts = append(opts, store.WithThumbnailPath(*result.ThumbnailPath))
		}
		if result.Classification != "" {
			opts = append(opts,
				store.WithStatus(models.VideoStatusCompleted),
				store.WithClassification(result.Classification),
			)
		}

		updated, err := r.store.UpdateVideo(ctx, current.ID, opts...)
		if err == nil {
			r.publish(ctx, updated)
			return updated, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt >= casRetries {
			return nil, err
		}
		fresh, ferr := r.store.GetVideo(ctx, current.ID, current.TenantID)
		if ferr != nil {
			return nil, ferr
		}
		expected = fresh.Version
	}
}

// fail marks the job failed with the stage's error. Progress stays where it
// was; the write is unconditional so a concurrent metadata edit cannot keep
// a broken job out of the failed state.
func (r *Runner) fail(ctx context.Context, video *models.Video, stageName string, stageErr error) {
	msg := fmt.Sprintf("stage %s: %v", stageName, stageErr)
	slog.Warn("processing failed", "video_id", video.ID, "stage", stageName, "error", stageErr)

	updated, err := r.store.UpdateVideo(ctx, video.ID,
		store.WithStatus(models.VideoStatusFailed),
		store.WithErrorMessage(msg),
	)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("recording failure", "video_id", video.ID, "error", err)
		}
		return
	}
	r.publish(ctx, updated)
}

func (r *Runner) discard(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.gateway.Delete(ctx, path); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		slog.Warn("removing unrecorded stage artifact", "path", path, "error", err)
	}
}

func (r *Runner) publish(ctx context.Context, video *models.Video) {
	event := models.ChangeEvent{
		Kind:     models.EventUpdated,
		TenantID: video.TenantID,
		VideoID:  video.ID,
		Video:    video,
	}
	if err := r.feed.Publish(ctx, event); err != nil {
		slog.Warn("publishing change event", "video_id", video.ID, "error", err)
	}
}
