package model

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func chatJSON(content string) []byte {
	b, _ := json.Marshal(map[string]any{
		"message": map[string]string{"role": "assistant", "content": content},
	})
	return b
}

func embedJSON(vecs ...[]float32) []byte {
	b, _ := json.Marshal(map[string]any{"embeddings": vecs})
	return b
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("messages = %+v", req.Messages)
		}
		w.Write(chatJSON("hi there"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.Generate(context.Background(), "test-model", "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "hi there" {
		t.Errorf("Generate = %q, want %q", got, "hi there")
	}
}

func TestChat_StructuredFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if _, ok := raw["format"]; !ok {
			t.Error("format missing from structured chat request")
		}
		w.Write(chatJSON(`{"action":"other"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	schema := &Schema{Type: "object", Properties: map[string]SchemaProperty{
		"action": {Type: "string"},
	}}
	got, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "x"}}, schema)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != `{"action":"other"}` {
		t.Errorf("Chat = %q", got)
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(embedJSON([]float32{0.1, 0.2, 0.3}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	vec, err := c.Embed(context.Background(), "embed-model", "some text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("len(vec) = %d, want 3", len(vec))
	}
}

func TestEmbed_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(embedJSON())
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Embed(context.Background(), "m", "text")
	var empty *EmptyResponseError
	if !errors.As(err, &empty) {
		t.Errorf("err = %v, want EmptyResponseError", err)
	}
}

func TestChat_AuthErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "x"}}, nil)
	var auth *AuthError
	if !errors.As(err, &auth) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("backend called %d times, want 1 (auth failures are final)", n)
	}
}

func TestChat_QuotaRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(chatJSON("eventually"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "x"}}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "eventually" {
		t.Errorf("Chat = %q", got)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("backend called %d times, want 3", n)
	}
}

func TestChat_ExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithMaxRetries(2))
	_, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "x"}}, nil)
	var quota *QuotaError
	if !errors.As(err, &quota) {
		t.Errorf("err = %v, want wrapped QuotaError", err)
	}
}

func TestChat_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.Write(chatJSON("too late"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL)
	_, err := c.Chat(ctx, "m", []Message{{Role: "user", Content: "x"}}, nil)
	if err == nil {
		t.Fatal("Chat: want error after context timeout")
	}
}

func TestCredentialHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer sekrit")
		}
		w.Write(chatJSON("ok"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithCredentials(StaticCredential("sekrit")))
	if _, err := c.Generate(context.Background(), "m", "x"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
}

func TestIsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := NewClient(srv.URL)
	if !c.IsRunning(context.Background()) {
		t.Error("IsRunning = false, want true")
	}
	srv.Close()
	if c.IsRunning(context.Background()) {
		t.Error("IsRunning = true after close, want false")
	}
}
