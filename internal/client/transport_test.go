package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taskpadhq/taskpad/internal/document"
)

func TestAPIClientPushDecodesServerDecision(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sync" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload syncPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode push: %v", err)
		}
		if payload.Credential != "hunter2" || payload.ClientTimestamp != 123 {
			t.Errorf("unexpected payload: %#v", payload)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "conflict",
			"content":   "- server copy",
			"timestamp": 456,
		})
	}))
	defer server.Close()

	apiClient, err := NewAPIClient(APIClientConfig{ServerURL: server.URL, Credential: "hunter2"})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	result, err := apiClient.Push(context.Background(), "- local copy", 123)
	if err != nil {
		t.Fatalf("push returned error: %v", err)
	}
	if result.Status != document.SyncStatusConflict || result.Content != "- server copy" || result.Timestamp != 456 {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestAPIClientMapsUnauthorizedResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	apiClient, err := NewAPIClient(APIClientConfig{ServerURL: server.URL, Credential: "wrong"})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	if _, err := apiClient.Push(context.Background(), "- anything", 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := apiClient.ListHistory(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAPIClientRequiresServerURLAndCredential(t *testing.T) {
	if _, err := NewAPIClient(APIClientConfig{Credential: "x"}); err == nil {
		t.Fatal("expected missing server URL to be rejected")
	}
	if _, err := NewAPIClient(APIClientConfig{ServerURL: "http://localhost:8080"}); err == nil {
		t.Fatal("expected missing credential to be rejected")
	}
}

func TestAPIClientHistoryRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload historyPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode history request: %v", err)
		}
		switch payload.Action {
		case "list":
			json.NewEncoder(w).Encode(map[string]any{
				"history": []map[string]any{{"id": 7, "created_at": 9000}},
			})
		case "get":
			if payload.ID != 7 {
				t.Errorf("unexpected revision id %d", payload.ID)
			}
			json.NewEncoder(w).Encode(map[string]any{"content": "- archived"})
		default:
			t.Errorf("unexpected action %q", payload.Action)
		}
	}))
	defer server.Close()

	apiClient, err := NewAPIClient(APIClientConfig{ServerURL: server.URL, Credential: "hunter2"})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	entries, err := apiClient.ListHistory(context.Background())
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != 7 || entries[0].CreatedAt != 9000 {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	content, err := apiClient.RevisionContent(context.Background(), 7)
	if err != nil {
		t.Fatalf("get returned error: %v", err)
	}
	if content != "- archived" {
		t.Fatalf("unexpected content: %q", content)
	}
}
