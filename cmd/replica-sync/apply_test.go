package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/chatreplica/internal/database"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/ephemeral"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/replica"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/syncer"
	"go.uber.org/zap"
)

func newTestSyncer(t *testing.T) (*syncer.Service, *database.Store) {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "replica.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	store, err := database.NewStore(database.StoreConfig{Database: db, IDProvider: replica.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	service, err := syncer.NewService(syncer.ServiceConfig{Store: store, Ephemeral: ephemeral.NewStore(ephemeral.Config{})})
	if err != nil {
		t.Fatalf("failed to construct syncer: %v", err)
	}
	return service, store
}

func TestApplyPayloadReconcilesEveryTable(t *testing.T) {
	service, store := newTestSyncer(t)
	input := strings.NewReader(`{
		"post": [{"id": "p1", "channel_id": "c1", "message": "hello", "create_at": 1700000000000, "update_at": 1700000000000}],
		"reaction": [
			{"post_id": "p1", "user_id": "u1", "emoji_name": "smile"},
			{"post_id": "p1", "user_id": "u2", "emoji_name": "smile"}
		]
	}`)
	var output bytes.Buffer

	if err := applyPayload(context.Background(), service, "s1", input, &output); err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}

	decoder := json.NewDecoder(&output)
	var results []tableResult
	for decoder.More() {
		var result tableResult
		if err := decoder.Decode(&result); err != nil {
			t.Fatalf("failed to decode result: %v", err)
		}
		results = append(results, result)
	}
	if len(results) != 2 || results[0].Table != replica.TablePost || results[1].Table != replica.TableReaction {
		t.Fatalf("unexpected results %#v", results)
	}
	if results[1].Result.Created != 2 {
		t.Fatalf("expected two reactions created, got %#v", results[1].Result)
	}

	post, err := store.FindMatch(context.Background(), replica.TablePost, map[string]any{"id": "p1"})
	if err != nil || post == nil {
		t.Fatalf("expected post to be stored: %v", err)
	}
	if post.(*replica.Post).CreateAt != 1700000000000 {
		t.Fatalf("unexpected create_at %d", post.(*replica.Post).CreateAt)
	}
}

func TestApplyPayloadRejectsUnknownTable(t *testing.T) {
	service, _ := newTestSyncer(t)
	err := applyPayload(context.Background(), service, "s1", strings.NewReader(`{"Nope": []}`), &bytes.Buffer{})
	if !errors.Is(err, replica.ErrUnknownTable) {
		t.Fatalf("expected unknown table error, got %v", err)
	}
}

func TestApplyPayloadRejectsMalformedInput(t *testing.T) {
	service, _ := newTestSyncer(t)
	if err := applyPayload(context.Background(), service, "s1", strings.NewReader(`[1, 2]`), &bytes.Buffer{}); err == nil {
		t.Fatalf("expected decode error")
	}
}
