package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/vidhive/vidhive/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrConflict is returned by UpdateVideo when the expected version does not
// match the stored row. Callers must re-fetch and reapply, never blind-overwrite.
var ErrConflict = errors.New("version conflict")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	InsertVideo(ctx context.Context, video *models.Video) error
	GetVideo(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Video, error)
	ListVideos(ctx context.Context, tenantID uuid.UUID) ([]*models.Video, error)
	UpdateVideo(ctx context.Context, id uuid.UUID, opts ...VideoUpdateOption) (*models.Video, error)
	DeleteVideo(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
}

type videoUpdateParams struct {
	ExpectedVersion *int64
	Status          *string
	Progress        *int
	Classification  *string
	ErrorMessage    *string
	DurationSecs    *float64
	ThumbnailPath   *string
	Title           *string
	Description     *string
}

// VideoUpdateOption selects which video fields an update touches. Every
// update bumps the row version; WithExpectedVersion makes the write a
// compare-and-set that fails with ErrConflict on a stale version.
type VideoUpdateOption func(*videoUpdateParams)

func WithExpectedVersion(v int64) VideoUpdateOption {
	return func(p *videoUpdateParams) {
		p.ExpectedVersion = &v
	}
}

func WithStatus(status string) VideoUpdateOption {
	return func(p *videoUpdateParams) {
		p.Status = &status
	}
}

func WithProgress(progress int) VideoUpdateOption {
	return func(p *videoUpdateParams) {
		p.Progress = &progress
	}
}

func WithClassification(c string) VideoUpdateOption {
	return func(p *videoUpdateParams) {
		p.Classification = &c
	}
}

func WithErrorMessage(msg string) VideoUpdateOption {
	return func(p *videoUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithDurationSecs(secs float64) VideoUpdateOption {
	return func(p *videoUpdateParams) {
		p.DurationSecs = &secs
	}
}

func WithThumbnailPath(path string) VideoUpdateOption {
	return func(p *videoUpdateParams) {
		p.ThumbnailPath = &path
	}
}

func WithTitle(title string) VideoUpdateOption {
	return func(p *videoUpdateParams) {
		p.Title = &title
	}
}

func WithDescription(desc string) VideoUpdateOption {
	return func(p *videoUpdateParams) {
		p.Description = &desc
	}
}
