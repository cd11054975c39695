package valkey

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/oauthkit/oauthkit/ormstore"
)

var testKind = ormstore.Kind{
	Name:     "widget",
	IDLength: 16,
	Tagged:   true,
	Untagged: []string{"secret"},
}

// testStore creates a test store connected to a local Valkey instance.
// Tests will be skipped if VALKEY_TEST_ADDR is not set or connection fails.
// Each test gets a unique prefix to ensure test isolation.
func testStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("VALKEY_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	prefix := fmt.Sprintf("oauthkittest:%s:", t.Name())

	store, err := New(Config{
		Address:   addr,
		KeyPrefix: prefix,
	})
	if err != nil {
		t.Skipf("Skipping test: could not connect to Valkey at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		cleanupTestKeys(t, store)
		store.Close()
	})

	cleanupTestKeys(t, store)
	return store
}

// cleanupTestKeys removes all test keys from Valkey
func cleanupTestKeys(t *testing.T, s *Store) {
	t.Helper()

	ctx := context.Background()
	pattern := s.prefix + "*"

	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build(),
		).AsScanEntry()
		if err != nil {
			t.Logf("Warning: failed to scan for cleanup: %v", err)
			return
		}

		for _, key := range result.Elements {
			_ = s.client.Do(ctx, s.client.B().Del().Key(key).Build())
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}
}

// ============================================================
// Config Tests
// ============================================================

func TestNew_MissingAddress(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Error("Expected error for missing address")
	}
}

func TestNew_InvalidAddress(t *testing.T) {
	_, err := New(Config{Address: "invalid:99999"})
	if err == nil {
		t.Error("Expected error for invalid address")
	}
}

// ============================================================
// Engine Tests
// ============================================================

func TestEngine_SaveAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	engine := s.Engine(testKind)

	entity := &ormstore.Entity{Attrs: ormstore.Attrs{
		"color":  ormstore.String("green"),
		"labels": ormstore.List("a", "b"),
		"on":     ormstore.Bool(true),
	}}
	if err := engine.Save(ctx, entity); err != nil {
		t.Fatalf("Failed to save entity: %v", err)
	}
	if len(entity.ID) != testKind.IDLength {
		t.Errorf("Expected a generated ID of length %d, got %q", testKind.IDLength, entity.ID)
	}

	got, err := engine.Get(ctx, entity.ID)
	if err != nil {
		t.Fatalf("Failed to get entity: %v", err)
	}
	if got == nil {
		t.Fatal("Expected entity, got nil")
	}
	if !got.Attrs.Equal(entity.Attrs) {
		t.Errorf("Attrs mismatch: got %v, want %v", got.Attrs, entity.Attrs)
	}
}

func TestEngine_GetAbsent(t *testing.T) {
	s := testStore(t)
	engine := s.Engine(testKind)

	got, err := engine.Get(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for absent entity, got %v", got)
	}
}

func TestEngine_ReserveID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	engine := s.Engine(testKind)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id, err := engine.ReserveID(ctx)
		if err != nil {
			t.Fatalf("Failed to reserve ID: %v", err)
		}
		if seen[id] {
			t.Fatalf("Reserved the same ID twice: %s", id)
		}
		seen[id] = true
	}
}

func TestEngine_FindByTags(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	engine := s.Engine(testKind)

	a := &ormstore.Entity{Attrs: ormstore.Attrs{
		"color": ormstore.String("green"),
		"shape": ormstore.String("round"),
	}}
	b := &ormstore.Entity{Attrs: ormstore.Attrs{
		"color": ormstore.String("green"),
		"shape": ormstore.String("square"),
	}}
	if err := engine.Save(ctx, a); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if err := engine.Save(ctx, b); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	green, err := engine.Find(ctx, ormstore.Attrs{"color": ormstore.String("green")})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(green) != 2 {
		t.Errorf("Expected 2 green entities, got %d", len(green))
	}

	both, err := engine.Find(ctx, ormstore.Attrs{
		"color": ormstore.String("green"),
		"shape": ormstore.String("round"),
	})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(both) != 1 || both[0].ID != a.ID {
		t.Errorf("Expected exactly entity %s, got %v", a.ID, both)
	}
}

func TestEngine_SaveUpdatesTagIndex(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	engine := s.Engine(testKind)

	e := &ormstore.Entity{Attrs: ormstore.Attrs{"color": ormstore.String("green")}}
	if err := engine.Save(ctx, e); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	e.Attrs["color"] = ormstore.String("red")
	if err := engine.Save(ctx, e); err != nil {
		t.Fatalf("Failed to re-save: %v", err)
	}

	green, err := engine.Find(ctx, ormstore.Attrs{"color": ormstore.String("green")})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(green) != 0 {
		t.Errorf("Stale tag still resolves: %v", green)
	}

	red, err := engine.Find(ctx, ormstore.Attrs{"color": ormstore.String("red")})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(red) != 1 {
		t.Errorf("Expected 1 red entity, got %d", len(red))
	}
}

func TestEngine_DeleteReportsExistence(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	engine := s.Engine(testKind)

	e := &ormstore.Entity{Attrs: ormstore.Attrs{"color": ormstore.String("green")}}
	if err := engine.Save(ctx, e); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	existed, err := engine.Delete(ctx, e.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !existed {
		t.Error("Expected first delete to report existence")
	}

	existed, err = engine.Delete(ctx, e.ID)
	if err != nil {
		t.Fatalf("Second delete failed: %v", err)
	}
	if existed {
		t.Error("Expected second delete to report the entity gone")
	}

	green, err := engine.Find(ctx, ormstore.Attrs{"color": ormstore.String("green")})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(green) != 0 {
		t.Errorf("Tag index not cleaned on delete: %v", green)
	}
}

func TestEngine_Expiry(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	engine := s.Engine(testKind)

	e := &ormstore.Entity{
		Attrs:     ormstore.Attrs{"color": ormstore.String("green")},
		ExpiresAt: time.Now().UTC().Add(-time.Second),
	}
	if err := engine.Save(ctx, e); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	got, err := engine.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected past-deadline entity to read as absent, got %v", got)
	}
}

func TestEngine_All(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	engine := s.Engine(testKind)

	for i := 0; i < 3; i++ {
		e := &ormstore.Entity{Attrs: ormstore.Attrs{"n": ormstore.String(fmt.Sprintf("%d", i))}}
		if err := engine.Save(ctx, e); err != nil {
			t.Fatalf("Failed to save: %v", err)
		}
	}

	all, err := engine.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 entities, got %d", len(all))
	}
}

func TestEngine_FullCleanup(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	engine := s.Engine(testKind)

	e := &ormstore.Entity{Attrs: ormstore.Attrs{"color": ormstore.String("green")}}
	if err := engine.Save(ctx, e); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	if err := engine.FullCleanup(ctx); err != nil {
		t.Fatalf("FullCleanup failed: %v", err)
	}

	all, err := engine.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("Expected empty kind after cleanup, got %d entities", len(all))
	}
}
