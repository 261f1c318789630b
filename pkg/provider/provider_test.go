package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/verascope-ai/verascope/pkg/models"
)

func testRequest() models.ChatCompletionRequest {
	seed := 42
	return models.ChatCompletionRequest{
		Model:    "test-model",
		Messages: []models.ChatMessage{{Role: "user", Content: "ping"}},
		Seed:     &seed,
	}
}

func TestCompleteOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"pong"}}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, "key-1", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}

	comp, err := c.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if comp.Text != "pong" {
		t.Errorf("expected pong, got %q", comp.Text)
	}
	if comp.Usage == nil || comp.Usage.TotalTokens != 3 {
		t.Errorf("usage not captured: %+v", comp.Usage)
	}
}

func TestCompleteMissingContentFallsBack(t *testing.T) {
	body := `{"unexpected": "shape"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c, _ := NewHTTPClient(srv.URL, "", time.Second)
	comp, err := c.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if comp.Text != body {
		t.Errorf("expected stringified body fallback, got %q", comp.Text)
	}
}

func TestCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := NewHTTPClient(srv.URL, "", time.Second)
	_, err := c.Complete(context.Background(), testRequest())
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if pe.Status != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", pe.Status)
	}
}

func TestCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c, _ := NewHTTPClient(srv.URL, "", 20*time.Millisecond)
	_, err := c.Complete(context.Background(), testRequest())
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error for timeout, got %v", err)
	}
}

func TestCheckGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkGrant" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"remainingTokens":900,"totalTokens":1000}`))
	}))
	defer srv.Close()

	c, _ := NewHTTPClient(srv.URL, "", time.Second)
	status, err := c.CheckGrant(context.Background())
	if err != nil {
		t.Fatalf("CheckGrant: %v", err)
	}
	if !status.Success || status.RemainingTokens != 900 {
		t.Errorf("unexpected status %+v", status)
	}
}
