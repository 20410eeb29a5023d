package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMapConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entry := MapConfigEntry{
		MapKey:      "lobby",
		Description: "ground floor lobby",
		Config:      json.RawMessage(`{"width":10,"height":8}`),
	}
	if err := s.PutMapConfig(ctx, entry); err != nil {
		t.Fatalf("put map config: %v", err)
	}

	got, err := s.GetMapConfig(ctx, "lobby")
	if err != nil {
		t.Fatalf("get map config: %v", err)
	}
	if got.Description != entry.Description || string(got.Config) != string(entry.Config) {
		t.Fatalf("got %+v, want %+v", got, entry)
	}

	entry.Description = "updated"
	if err := s.PutMapConfig(ctx, entry); err != nil {
		t.Fatalf("update map config: %v", err)
	}
	got, err = s.GetMapConfig(ctx, "lobby")
	if err != nil {
		t.Fatalf("get updated map config: %v", err)
	}
	if got.Description != "updated" {
		t.Fatalf("update did not apply, got %q", got.Description)
	}

	list, err := s.ListMapConfigs(ctx)
	if err != nil {
		t.Fatalf("list map configs: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 map config, got %d", len(list))
	}

	if err := s.DeleteMapConfig(ctx, "lobby"); err != nil {
		t.Fatalf("delete map config: %v", err)
	}
	if _, err := s.GetMapConfig(ctx, "lobby"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCollisionDataRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutMapConfig(ctx, MapConfigEntry{MapKey: "lobby", Config: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("put map config: %v", err)
	}

	data := []byte{0x89, 'P', 'N', 'G', 0x01, 0x02}
	if err := s.PutCollisionData(ctx, "lobby", data); err != nil {
		t.Fatalf("put collision data: %v", err)
	}

	got, err := s.GetCollisionData(ctx, "lobby")
	if err != nil {
		t.Fatalf("get collision data: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %v, want %v", got, data)
	}

	if err := s.DeleteCollisionData(ctx, "lobby"); err != nil {
		t.Fatalf("delete collision data: %v", err)
	}
	if _, err := s.GetCollisionData(ctx, "lobby"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entry := ConfigEntry{
		Key:         "default",
		Type:        "signal_model",
		Description: "default tag signal model",
		Value:       json.RawMessage(`{"alpha":2.0,"beta":-40}`),
	}
	if err := s.PutConfig(ctx, entry); err != nil {
		t.Fatalf("put config: %v", err)
	}

	got, err := s.GetConfig(ctx, "default", "signal_model")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if string(got.Value) != string(entry.Value) {
		t.Fatalf("got %q, want %q", got.Value, entry.Value)
	}

	if _, err := s.GetConfig(ctx, "default", "other_type"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for distinct (key,type), got %v", err)
	}

	list, err := s.ListConfig(ctx, "signal_model")
	if err != nil {
		t.Fatalf("list config: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 config entry, got %d", len(list))
	}

	if err := s.DeleteConfig(ctx, "default", "signal_model"); err != nil {
		t.Fatalf("delete config: %v", err)
	}
	if _, err := s.GetConfig(ctx, "default", "signal_model"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
