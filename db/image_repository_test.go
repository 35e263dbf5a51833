package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pixelbatch/core"
)

func openTestDatabase(t *testing.T) *Database {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func intPtr(i int) *int { return &i }

func TestOpen_AppliesMigrations(t *testing.T) {
	database := openTestDatabase(t)

	version, dirty, err := MigrationVersion(database.Path())
	if err != nil {
		t.Fatalf("MigrationVersion() error = %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("version = %d dirty = %v, want 2 clean", version, dirty)
	}

	if err := database.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	repo := NewImageRepository(first)
	if err := repo.Put(context.Background(), core.ImageRecord{ID: 1, Src: "a", Prompt: "p"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer second.Close()

	got, err := NewImageRepository(second).GetAll(context.Background())
	if err != nil || len(got) != 1 {
		t.Fatalf("GetAll() after reopen = %v, %v; want one record", got, err)
	}
}

func TestImageRepository_PutGetAllSortsDescending(t *testing.T) {
	ctx := context.Background()
	repo := NewImageRepository(openTestDatabase(t))

	created := time.UnixMilli(1_700_000_000_000)
	records := []core.ImageRecord{
		{ID: 200, Src: core.JPEGDataURI("Yg=="), Prompt: "b", PromptIndex: intPtr(2), CreatedAt: created},
		{ID: 100, Src: core.JPEGDataURI("YQ=="), Prompt: "a", PromptIndex: intPtr(1), CreatedAt: created},
		{ID: 300, Src: core.JPEGDataURI("Yw=="), Prompt: "c"},
	}
	for _, rec := range records {
		if err := repo.Put(ctx, rec); err != nil {
			t.Fatalf("Put(%d) error = %v", rec.ID, err)
		}
	}

	got, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	wantIDs := []int64{300, 200, 100}
	if len(got) != len(wantIDs) {
		t.Fatalf("GetAll() returned %d records, want %d", len(got), len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("GetAll()[%d].ID = %d, want %d", i, got[i].ID, id)
		}
	}

	if got[0].PromptIndex != nil {
		t.Errorf("record 300 PromptIndex = %v, want nil", *got[0].PromptIndex)
	}
	if got[1].PromptIndex == nil || *got[1].PromptIndex != 2 {
		t.Errorf("record 200 PromptIndex = %v, want 2", got[1].PromptIndex)
	}
	if !got[2].CreatedAt.Equal(created) {
		t.Errorf("record 100 CreatedAt = %v, want %v", got[2].CreatedAt, created)
	}
	if got[2].Src != core.JPEGDataURI("YQ==") || got[2].Prompt != "a" {
		t.Errorf("record 100 = %+v", got[2])
	}
}

func TestImageRepository_PutReplaces(t *testing.T) {
	ctx := context.Background()
	repo := NewImageRepository(openTestDatabase(t))

	if err := repo.Put(ctx, core.ImageRecord{ID: 1, Src: "old", Prompt: "p"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Put(ctx, core.ImageRecord{ID: 1, Src: "new", Prompt: "p"}); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Src != "new" {
		t.Errorf("GetAll() = %+v, want single replaced record", got)
	}
}

func TestImageRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewImageRepository(openTestDatabase(t))

	for _, id := range []int64{1, 2, 3, 4} {
		if err := repo.Put(ctx, core.ImageRecord{ID: id, Src: "x", Prompt: "p"}); err != nil {
			t.Fatal(err)
		}
	}

	if err := repo.Delete(ctx, 2); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, 99); err != nil {
		t.Fatalf("Delete(missing) error = %v", err)
	}
	if err := repo.DeleteMany(ctx, []int64{1, 4, 42}); err != nil {
		t.Fatalf("DeleteMany() error = %v", err)
	}
	if err := repo.DeleteMany(ctx, nil); err != nil {
		t.Fatalf("DeleteMany(nil) error = %v", err)
	}

	got, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != 3 {
		t.Errorf("remaining = %+v, want only id 3", got)
	}
}

func TestImageRepository_PutAfterCloseFails(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "closed.db"))
	if err != nil {
		t.Fatal(err)
	}
	repo := NewImageRepository(database)
	database.Close()

	if err := repo.Put(context.Background(), core.ImageRecord{ID: 1, Src: "x"}); err == nil {
		t.Error("Put() on closed database succeeded, want error")
	}
}
