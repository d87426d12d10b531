package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/chatreplica/internal/auth"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/database"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/ephemeral"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/replica"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/syncer"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	testSigningSecret = "test-signing-secret"
	testIssuer        = "replica-sync"
)

type testServer struct {
	handler    http.Handler
	store      *database.Store
	ephemeral  *ephemeral.Store
	realtime   *RealtimeDispatcher
	issuer     *auth.TokenIssuer
	token      string
	otherToken string
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "replica.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	store, err := database.NewStore(database.StoreConfig{Database: db, IDProvider: replica.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	ephemeralStore := ephemeral.NewStore(ephemeral.Config{})
	syncService, err := syncer.NewService(syncer.ServiceConfig{Store: store, Ephemeral: ephemeralStore})
	if err != nil {
		t.Fatalf("failed to construct syncer: %v", err)
	}
	validator, err := auth.NewTokenValidator(auth.TokenValidatorConfig{SigningSecret: []byte(testSigningSecret), Issuer: testIssuer})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte(testSigningSecret), Issuer: testIssuer, TokenTTL: time.Minute})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		Syncer:            syncService,
		Ephemeral:         ephemeralStore,
		Validator:         validator,
		Realtime:          dispatcher,
		HeartbeatInterval: 50 * time.Millisecond,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	token, _, err := issuer.IssueConnectionToken(context.Background(), "device-1", []string{"s1"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	otherToken, _, err := issuer.IssueConnectionToken(context.Background(), "device-2", []string{"s2"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	return testServer{
		handler:    handler,
		store:      store,
		ephemeral:  ephemeralStore,
		realtime:   dispatcher,
		issuer:     issuer,
		token:      token,
		otherToken: otherToken,
	}
}

func (s testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func postPayload(id, message string, updateAt int64) map[string]any {
	return map[string]any{
		"id":         id,
		"channel_id": "c1",
		"message":    message,
		"create_at":  100,
		"edit_at":    updateAt,
		"update_at":  updateAt,
	}
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		t.Fatalf("expected error when dependencies are missing")
	}
}

func TestRoutesRequireAuthorization(t *testing.T) {
	server := newTestServer(t)

	recorder := server.do(t, http.MethodPost, "/connections/s1/events", "", map[string]any{"type": EventPosted})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, recorder.Code)
	}

	recorder = server.do(t, http.MethodPost, "/connections/s1/events", "not-a-token", map[string]any{"type": EventPosted})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d for invalid token, got %d", http.StatusUnauthorized, recorder.Code)
	}

	recorder = server.do(t, http.MethodPost, "/connections/s1/events", server.otherToken, map[string]any{"type": EventPosted})
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected status %d for foreign connection, got %d", http.StatusForbidden, recorder.Code)
	}
}

func TestCORSPreflightAllowsAuthorizationHeader(t *testing.T) {
	server := newTestServer(t)

	request := httptest.NewRequest(http.MethodOptions, "/connections/s1/events", http.NoBody)
	request.Header.Set("Origin", "https://app.example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	request.Header.Set("Access-Control-Request-Headers", "Authorization")
	recorder := httptest.NewRecorder()
	server.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	allowHeaders := recorder.Header().Get("Access-Control-Allow-Headers")
	if !strings.Contains(strings.ToLower(allowHeaders), "authorization") {
		t.Fatalf("expected Access-Control-Allow-Headers to include Authorization, got %q", allowHeaders)
	}
}

func TestPostEventsFlowThroughReplica(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	recorder := server.do(t, http.MethodPost, "/connections/s1/events", server.token, map[string]any{
		"type": EventPosted,
		"post": postPayload("p1", "hello", 10),
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	var response eventResponsePayload
	decodeBody(t, recorder, &response)
	if !response.Applied || response.Type != EventPosted {
		t.Fatalf("unexpected response %#v", response)
	}

	recorder = server.do(t, http.MethodPost, "/connections/s1/events", server.token, map[string]any{
		"type": EventPostEdited,
		"post": postPayload("p1", "edited", 20),
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}

	recorder = server.do(t, http.MethodPost, "/connections/s1/events", server.token, map[string]any{
		"type": EventPostEdited,
		"post": postPayload("p1", "stale", 15),
	})
	decodeBody(t, recorder, &response)
	if response.Applied {
		t.Fatalf("expected stale edit to be dropped")
	}

	record, err := server.store.FindMatch(ctx, replica.TablePost, map[string]any{"id": "p1"})
	if err != nil || record == nil {
		t.Fatalf("expected post to be stored: %v", err)
	}
	if message := record.(*replica.Post).Message; message != "edited" {
		t.Fatalf("expected edited message, got %q", message)
	}

	recorder = server.do(t, http.MethodGet, "/connections/s1/posts/p1/last-event", server.token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	var last lastPostEventResponse
	decodeBody(t, recorder, &last)
	if last.Deleted || last.UpdateAt != 20 || last.Post["message"] != "edited" {
		t.Fatalf("unexpected last event %#v", last)
	}

	recorder = server.do(t, http.MethodPost, "/connections/s1/events", server.token, map[string]any{
		"type":    EventPostDeleted,
		"post_id": "p1",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	recorder = server.do(t, http.MethodGet, "/connections/s1/posts/p1/last-event", server.token, nil)
	decodeBody(t, recorder, &last)
	if !last.Deleted {
		t.Fatalf("expected tombstone, got %#v", last)
	}

	recorder = server.do(t, http.MethodGet, "/connections/s1/posts/unknown/last-event", server.token, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, recorder.Code)
	}
}

func TestChannelEvents(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	recorder := server.do(t, http.MethodPost, "/connections/s1/events", server.token, map[string]any{
		"type":    EventChannelJoined,
		"channel": map[string]any{"id": "c1", "name": "town-square", "type": "O", "team_id": "t1"},
		"member":  map[string]any{"user_id": "u1", "roles": "channel_user"},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}

	recorder = server.do(t, http.MethodPost, "/connections/s1/events", server.token, map[string]any{
		"type":       EventChannelConverted,
		"channel_id": "c1",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	channel, err := server.store.FindMatch(ctx, replica.TableChannel, map[string]any{"id": "c1"})
	if err != nil || channel == nil {
		t.Fatalf("expected channel to be stored: %v", err)
	}
	if channel.(*replica.Channel).Type != "P" {
		t.Fatalf("expected channel to be private, got %q", channel.(*replica.Channel).Type)
	}

	recorder = server.do(t, http.MethodPost, "/connections/s1/events", server.token, map[string]any{
		"type":       EventChannelSwitched,
		"team_id":    "t1",
		"channel_id": "c1",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}

	recorder = server.do(t, http.MethodPost, "/connections/s1/events", server.token, map[string]any{
		"type":       EventChannelArchived,
		"channel_id": "missing",
		"delete_at":  500,
	})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, recorder.Code)
	}
	var failure map[string]string
	decodeBody(t, recorder, &failure)
	if failure["error"] != "syncer.archive_channel.channel_not_found" {
		t.Fatalf("unexpected error code %q", failure["error"])
	}

	recorder = server.do(t, http.MethodPost, "/connections/s1/events", server.token, map[string]any{
		"type":       EventChannelLeft,
		"channel_id": "c1",
		"user_id":    "u1",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	membership, err := server.store.FindMatch(ctx, replica.TableChannelMembership, map[string]any{"channel_id": "c1", "user_id": "u1"})
	if err != nil || membership != nil {
		t.Fatalf("expected membership to be removed, got %#v (%v)", membership, err)
	}
}

func TestEventValidation(t *testing.T) {
	server := newTestServer(t)

	testCases := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{name: "unknown type", body: map[string]any{"type": "typing"}, status: http.StatusBadRequest, code: "unknown_event_type"},
		{name: "posted without post", body: map[string]any{"type": EventPosted}, status: http.StatusBadRequest, code: "invalid_event"},
		{name: "edit without id", body: map[string]any{"type": EventPostEdited, "post": map[string]any{"message": "x"}}, status: http.StatusBadRequest, code: "syncer.post_edited.missing_post_id"},
		{name: "team missing name", body: map[string]any{"type": EventAddedToTeam, "team": map[string]any{"id": "t1"}, "member": map[string]any{"user_id": "u1"}}, status: http.StatusUnprocessableEntity, code: "syncer.added_to_team.missing_field"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := server.do(t, http.MethodPost, "/connections/s1/events", server.token, testCase.body)
			if recorder.Code != testCase.status {
				t.Fatalf("expected status %d, got %d: %s", testCase.status, recorder.Code, recorder.Body.String())
			}
			var failure map[string]string
			decodeBody(t, recorder, &failure)
			if failure["error"] != testCase.code {
				t.Fatalf("expected error code %q, got %q", testCase.code, failure["error"])
			}
		})
	}
}

func TestRecordsEndpoint(t *testing.T) {
	server := newTestServer(t)

	recorder := server.do(t, http.MethodPost, "/connections/s1/records/"+replica.TableReaction, server.token, map[string]any{
		"records": []map[string]any{
			{"post_id": "p1", "user_id": "u1", "emoji_name": "smile", "create_at": 1},
			{"post_id": "p1", "user_id": "u2", "emoji_name": "tada", "create_at": 2},
		},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	var response recordsResponsePayload
	decodeBody(t, recorder, &response)
	if response.Table != replica.TableReaction || response.Result.Created != 2 {
		t.Fatalf("unexpected response %#v", response)
	}

	recorder = server.do(t, http.MethodPost, "/connections/s1/records/Unknown", server.token, map[string]any{
		"records": []map[string]any{{"id": "x"}},
	})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, recorder.Code)
	}

	recorder = server.do(t, http.MethodPost, "/connections/s1/records/"+replica.TableReaction, server.token, map[string]any{"records": []map[string]any{}})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}

func TestCanJoinTeamsUpdateAndTeardown(t *testing.T) {
	server := newTestServer(t)

	recorder := server.do(t, http.MethodPut, "/connections/s1/flags/can-join-teams", server.token, map[string]any{"value": true})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	if !server.ephemeral.CanJoinOtherTeams("s1") {
		t.Fatalf("expected flag to be set")
	}

	recorder = server.do(t, http.MethodPut, "/connections/s1/flags/can-join-teams", server.token, map[string]any{})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}

	server.ephemeral.AddRemovingPost("s1", "p1")
	recorder = server.do(t, http.MethodDelete, "/connections/s1", server.token, nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	if _, known := server.ephemeral.LastPostEvent("s1", "p1"); known {
		t.Fatalf("expected ephemeral state to be forgotten")
	}
	if server.ephemeral.CanJoinOtherTeams("s1") {
		t.Fatalf("expected flag to reset after teardown")
	}
}
