// Package records persists photo records across the upload and transform
// lifecycle so booth clients can observe progress and fetch results.
package records

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound reports an unknown photo id.
var ErrNotFound = errors.New("records: photo not found")

// Status of a photo record.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Photo is the record persisted per uploaded photo.
type Photo struct {
	ID           string    `json:"id"`
	OriginalURL  string    `json:"original_url"`
	ResultURL    string    `json:"result_url,omitempty"`
	Prompt       string    `json:"prompt,omitempty"`
	ModelVersion string    `json:"model_version,omitempty"`
	Status       Status    `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is the record-store boundary.
type Store interface {
	Create(ctx context.Context, photo Photo) error
	Get(ctx context.Context, id string) (Photo, error)
	SetProcessing(ctx context.Context, id, prompt, modelVersion string) error
	SetResult(ctx context.Context, id, resultURL string) error
	SetFailed(ctx context.Context, id, message string) error
	List(ctx context.Context) ([]Photo, error)
}

// MemoryStore keeps records in process memory, for tests and single-node
// demo deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	photos map[string]Photo
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{photos: make(map[string]Photo)}
}

func (s *MemoryStore) Create(_ context.Context, photo Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos[photo.ID] = photo
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	photo, ok := s.photos[id]
	if !ok {
		return Photo{}, ErrNotFound
	}
	return photo, nil
}

func (s *MemoryStore) update(id string, fn func(*Photo)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	photo, ok := s.photos[id]
	if !ok {
		return ErrNotFound
	}
	fn(&photo)
	photo.UpdatedAt = time.Now().UTC()
	s.photos[id] = photo
	return nil
}

func (s *MemoryStore) SetProcessing(_ context.Context, id, prompt, modelVersion string) error {
	return s.update(id, func(p *Photo) {
		p.Status = StatusProcessing
		p.Prompt = prompt
		p.ModelVersion = modelVersion
		p.Error = ""
	})
}

func (s *MemoryStore) SetResult(_ context.Context, id, resultURL string) error {
	return s.update(id, func(p *Photo) {
		p.Status = StatusDone
		p.ResultURL = resultURL
		p.Error = ""
	})
}

func (s *MemoryStore) SetFailed(_ context.Context, id, message string) error {
	return s.update(id, func(p *Photo) {
		p.Status = StatusFailed
		p.Error = message
	})
}

func (s *MemoryStore) List(_ context.Context) ([]Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	photos := make([]Photo, 0, len(s.photos))
	for _, photo := range s.photos {
		photos = append(photos, photo)
	}
	sort.Slice(photos, func(i, j int) bool {
		return photos[i].CreatedAt.After(photos[j].CreatedAt)
	})
	return photos, nil
}
