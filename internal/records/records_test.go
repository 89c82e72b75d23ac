package records

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newPhoto(id string, createdAt time.Time) Photo {
	return Photo{
		ID:          id,
		OriginalURL: "http://blobs.test/" + id + ".jpg",
		Status:      StatusUploaded,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created := time.Now().UTC().Add(-time.Minute)
	if err := store.Create(ctx, newPhoto("p1", created)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.SetProcessing(ctx, "p1", "make it cyberpunk", "abc123"); err != nil {
		t.Fatalf("SetProcessing: %v", err)
	}
	photo, err := store.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if photo.Status != StatusProcessing || photo.Prompt != "make it cyberpunk" || photo.ModelVersion != "abc123" {
		t.Errorf("after SetProcessing: %+v", photo)
	}
	if !photo.UpdatedAt.After(created) {
		t.Error("UpdatedAt must advance on update")
	}

	if err := store.SetResult(ctx, "p1", "http://blobs.test/out.png"); err != nil {
		t.Fatalf("SetResult: %v", err)
	}
	photo, _ = store.Get(ctx, "p1")
	if photo.Status != StatusDone || photo.ResultURL != "http://blobs.test/out.png" {
		t.Errorf("after SetResult: %+v", photo)
	}

	if err := store.SetFailed(ctx, "p1", "boom"); err != nil {
		t.Fatalf("SetFailed: %v", err)
	}
	photo, _ = store.Get(ctx, "p1")
	if photo.Status != StatusFailed || photo.Error != "boom" {
		t.Errorf("after SetFailed: %+v", photo)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if err := store.SetResult(ctx, "missing", "url"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetResult: expected ErrNotFound, got %v", err)
	}
	if err := store.SetProcessing(ctx, "missing", "", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetProcessing: expected ErrNotFound, got %v", err)
	}
	if err := store.SetFailed(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetFailed: expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	base := time.Now().UTC()
	store.Create(ctx, newPhoto("old", base.Add(-2*time.Hour)))
	store.Create(ctx, newPhoto("new", base))
	store.Create(ctx, newPhoto("mid", base.Add(-time.Hour)))

	photos, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(photos) != 3 {
		t.Fatalf("got %d photos", len(photos))
	}
	if photos[0].ID != "new" || photos[1].ID != "mid" || photos[2].ID != "old" {
		t.Errorf("order: %s, %s, %s", photos[0].ID, photos[1].ID, photos[2].ID)
	}
}
