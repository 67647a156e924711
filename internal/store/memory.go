package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vidhive/vidhive/pkg/models"
)

// MemoryStore is an in-memory Store with the same semantics as
// PostgresStore, including version CAS and status transition checks.
// Used in tests and by components that need a store without a database.
type MemoryStore struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]models.Tenant
	keys    map[uuid.UUID]models.APIKey
	videos  map[uuid.UUID]models.Video

	defaultTenant uuid.UUID
}

// NewMemoryStore creates a MemoryStore seeded with a default tenant.
func NewMemoryStore() *MemoryStore {
	now := time.Now().UTC()
	tenant := models.Tenant{ID: uuid.New(), Name: "default", CreatedAt: now, UpdatedAt: now}
	return &MemoryStore{
		tenants:       map[uuid.UUID]models.Tenant{tenant.ID: tenant},
		keys:          make(map[uuid.UUID]models.APIKey),
		videos:        make(map[uuid.UUID]models.Video),
		defaultTenant: tenant.ID,
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) GetDefaultTenant(ctx context.Context) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenants[s.defaultTenant]
	return &t, nil
}

// --- API Keys ---

func (s *MemoryStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			key := k
			out = append(out, &key)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
		k.UpdatedAt = now
		s.keys[id] = k
	}
	return nil
}

func (s *MemoryStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key.ID]; ok {
		return ErrDuplicateKey
	}
	s.keys[key.ID] = *key
	return nil
}

func (s *MemoryStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.TenantID == tenantID && k.DeletedAt == nil {
			key := k
			out = append(out, &key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[id]
	if !ok || k.TenantID != tenantID || k.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	s.keys[id] = k
	return nil
}

// --- Videos ---

func (s *MemoryStore) InsertVideo(ctx context.Context, video *models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[video.ID]; ok {
		return ErrDuplicateKey
	}
	s.videos[video.ID] = *video
	return nil
}

func (s *MemoryStore) GetVideo(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok || v.TenantID != tenantID {
		return nil, ErrNotFound
	}
	out := v
	return &out, nil
}

func (s *MemoryStore) ListVideos(ctx context.Context, tenantID uuid.UUID) ([]*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Video{}
	for _, v := range s.videos {
		if v.TenantID == tenantID {
			video := v
			out = append(out, &video)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateVideo(ctx context.Context, id uuid.UUID, opts ...VideoUpdateOption) (*models.Video, error) {
	params := &videoUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.videos[id]
	if !ok {
		return nil, ErrNotFound
	}

	terminal := v.Status == models.VideoStatusCompleted || v.Status == models.VideoStatusFailed
	if params.Status != nil && *params.Status != v.Status {
		allowed := false
		for _, next := range validTransitions[v.Status] {
			if next == *params.Status {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("invalid video status transition: %s -> %s", v.Status, *params.Status)
		}
	}
	if params.Progress != nil && terminal {
		return nil, fmt.Errorf("progress is frozen once status is %s", v.Status)
	}
	if params.ExpectedVersion != nil && v.Version != *params.ExpectedVersion {
		return nil, ErrConflict
	}

	if params.Status != nil {
		v.Status = *params.Status
	}
	if params.Progress != nil && *params.Progress > v.Progress {
		v.Progress = *params.Progress
	}
	if params.Classification != nil {
		v.Classification = *params.Classification
	}
	if params.ErrorMessage != nil {
		v.ErrorMessage = params.ErrorMessage
	}
	if params.DurationSecs != nil {
		v.DurationSecs = params.DurationSecs
	}
	if params.ThumbnailPath != nil {
		v.ThumbnailPath = params.ThumbnailPath
	}
	if params.Title != nil {
		v.Title = *params.Title
	}
	if params.Description != nil {
		v.Description = params.Description
	}
	v.Version++
	v.UpdatedAt = time.Now().UTC()
	s.videos[id] = v

	out := v
	return &out, nil
}

func (s *MemoryStore) DeleteVideo(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok || v.TenantID != tenantID {
		return ErrNotFound
	}
	delete(s.videos, id)
	return nil
}

var _ Store = (*MemoryStore)(nil)
