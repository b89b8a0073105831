package history

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenAt(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenAt() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RecordAndList(t *testing.T) {
	store := openTestStore(t)

	start := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	if err := store.RecordConnect("s1", "vpn.example.com", "10.0.0.2", "tun0", start); err != nil {
		t.Fatalf("RecordConnect() error = %v", err)
	}
	if err := store.RecordDisconnect("s1", "user requested", start.Add(time.Hour)); err != nil {
		t.Fatalf("RecordDisconnect() error = %v", err)
	}

	entries, err := store.List(10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("List() returned %d entries, want 1", len(entries))
	}

	e := entries[0]
	if e.Session != "s1" || e.Server != "vpn.example.com" || e.IP != "10.0.0.2" || e.Device != "tun0" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.EndedAt == nil {
		t.Fatal("entry should be closed")
	}
	if e.EndReason != "user requested" {
		t.Errorf("end_reason = %q, want %q", e.EndReason, "user requested")
	}
	if !e.EndedAt.After(e.ConnectedAt) {
		t.Error("ended_at should follow connected_at")
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	store := openTestStore(t)

	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		session := string(rune('a' + i))
		if err := store.RecordConnect(session, "vpn.example.com", "", "", base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := store.List(2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List(2) returned %d entries", len(entries))
	}
	if entries[0].Session != "c" || entries[1].Session != "b" {
		t.Errorf("entries not newest first: %s, %s", entries[0].Session, entries[1].Session)
	}
}

func TestStore_DisconnectUnknownSession(t *testing.T) {
	store := openTestStore(t)

	if err := store.RecordDisconnect("never-seen", "timeout", time.Now()); err != nil {
		t.Errorf("RecordDisconnect() on unknown session error = %v", err)
	}
}

func TestStore_OpenRowStaysOpen(t *testing.T) {
	store := openTestStore(t)

	if err := store.RecordConnect("s1", "vpn.example.com", "10.0.0.2", "tun0", time.Now()); err != nil {
		t.Fatal(err)
	}

	entries, err := store.List(1)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].EndedAt != nil {
		t.Error("session without disconnect should have nil EndedAt")
	}
}
