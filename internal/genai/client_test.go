package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-key")
	c.baseURL = srv.URL
	return c
}

func TestGenerateSuccess(t *testing.T) {
	var gotPath, gotKey string
	var gotBody generateRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{"parts": []map[string]string{{"text": "Hello there."}}}},
			},
		})
	})

	text, err := c.Generate(context.Background(), "Say hello", "gemini-pro")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if text != "Hello there." {
		t.Errorf("text = %q, want %q", text, "Hello there.")
	}
	if gotPath != "/models/gemini-pro:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q, want %q", gotKey, "test-key")
	}
	if len(gotBody.Contents) != 1 || len(gotBody.Contents[0].Parts) != 1 || gotBody.Contents[0].Parts[0].Text != "Say hello" {
		t.Errorf("request body = %+v", gotBody)
	}
}

func TestGenerateJoinsParts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{"parts": []map[string]string{{"text": "Hello "}, {"text": "world"}}}},
			},
		})
	})

	text, err := c.Generate(context.Background(), "p", "gemini-pro")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if text != "Hello world" {
		t.Errorf("text = %q, want %q", text, "Hello world")
	}
}

func TestGenerateAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": 400, "message": "API key not valid. Please pass a valid API key.", "status": "INVALID_ARGUMENT"},
		})
	})

	_, err := c.Generate(context.Background(), "p", "gemini-pro")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("error = %v, want ErrGeneration", err)
	}
	if !strings.Contains(err.Error(), "API key not valid") {
		t.Errorf("error should carry the API message, got: %v", err)
	}
}

func TestGenerateEmptyCandidates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []interface{}{}})
	})

	if _, err := c.Generate(context.Background(), "p", "gemini-pro"); !errors.Is(err, ErrGeneration) {
		t.Fatalf("error = %v, want ErrGeneration", err)
	}
}

func TestGenerateWithoutKey(t *testing.T) {
	c := NewClient("")
	if _, err := c.Generate(context.Background(), "p", "gemini-pro"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("error = %v, want ErrNotConfigured", err)
	}
}

func TestUpdateAPIKey(t *testing.T) {
	c := NewClient("")
	if c.IsConfigured() {
		t.Fatal("IsConfigured = true for empty key")
	}
	c.UpdateAPIKey("new-key")
	if !c.IsConfigured() {
		t.Fatal("IsConfigured = false after UpdateAPIKey")
	}
	c.UpdateAPIKey("")
	if c.IsConfigured() {
		t.Fatal("IsConfigured = true after clearing key")
	}
}

func TestResolveAPIKey(t *testing.T) {
	tests := []struct {
		envKey, dbKey string
		wantKey       string
		wantSource    string
	}{
		{"env-k", "db-k", "env-k", "env"},
		{"", "db-k", "db-k", "database"},
		{"", "", "", "none"},
	}
	for _, tt := range tests {
		key, source := ResolveAPIKey(tt.envKey, tt.dbKey)
		if key != tt.wantKey || source != tt.wantSource {
			t.Errorf("ResolveAPIKey(%q, %q) = (%q, %q), want (%q, %q)",
				tt.envKey, tt.dbKey, key, source, tt.wantKey, tt.wantSource)
		}
	}
}

func TestIsAuthError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"code": 403, "message": "denied", "status": "PERMISSION_DENIED"},
		})
	})

	_, err := c.Generate(context.Background(), "p", "gemini-pro")
	if !IsAuthError(err) {
		t.Errorf("IsAuthError = false for %v", err)
	}
	if IsAuthError(nil) {
		t.Error("IsAuthError(nil) = true")
	}
}
