package snapshot

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/relaydesk/model-gateway/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.SnapshotConf{DBPath: filepath.Join(t.TempDir(), "snapshots.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload := []byte("opaque backup bytes \x00\x01\x02")
	if err := s.Save(ctx, "desk-1", "application/octet-stream", payload); err != nil {
		t.Fatal(err)
	}

	got, contentType, err := s.Load(ctx, "desk-1")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("loaded %q, want %q", got, payload)
	}
	if contentType != "application/octet-stream" {
		t.Errorf("content type = %q", contentType)
	}
}

func TestSaveReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "desk-1", "text/plain", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, "desk-1", "application/json", []byte("v2")); err != nil {
		t.Fatal(err)
	}

	got, contentType, err := s.Load(ctx, "desk-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Errorf("loaded %q, want v2", got)
	}
	if contentType != "application/json" {
		t.Errorf("content type not replaced: %q", contentType)
	}

	infos, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Fatalf("list len = %d, want 1", len(infos))
	}
	if infos[0].Size != 2 {
		t.Errorf("size = %d, want 2", infos[0].Size)
	}
}

func TestLoadMissing(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Load(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "gone", "", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "gone"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Load(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("load after delete err = %v", err)
	}
	if err := s.Delete(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestSaveRejectsOversizedAndUnnamed(t *testing.T) {
	s, err := Open(config.SnapshotConf{
		DBPath:   filepath.Join(t.TempDir(), "snapshots.db"),
		MaxBytes: 16,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	if err := s.Save(ctx, "big", "", make([]byte, 17)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("oversized err = %v", err)
	}
	if err := s.Save(ctx, "fits", "", make([]byte, 16)); err != nil {
		t.Errorf("payload at the cap rejected: %v", err)
	}
	if err := s.Save(ctx, "", "", []byte("x")); err == nil {
		t.Error("unnamed snapshot should fail")
	}
}

func TestListOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if err := s.Save(ctx, name, "text/plain", []byte(name)); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 3 {
		t.Fatalf("list len = %d", len(infos))
	}
	// Same-second updates fall back to name order within the tie.
	seen := map[string]bool{}
	for _, info := range infos {
		seen[info.Name] = true
	}
	for _, name := range []string{"a", "b", "c"} {
		if !seen[name] {
			t.Errorf("missing snapshot %q in list", name)
		}
	}
}
