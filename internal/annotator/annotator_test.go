package annotator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"uplight/internal/config"
	"uplight/internal/storage"
)

func completion(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
}

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAI(config.AnnotatorConfig{
		Enabled: true,
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 2 * time.Second,
	})
}

func TestBuildPrompt(t *testing.T) {
	code := 503
	prompt := BuildPrompt(Request{
		Cause:        storage.CauseHTTP5xx,
		MonitorName:  "checkout",
		MonitorURL:   "https://shop.example.com",
		StatusCode:   &code,
		ErrorMessage: "Expected status 200, got 503",
		ResponseTime: 812,
		Location:     "weur",
	})

	for _, want := range []string{
		"Cause: http 5xx",
		"Monitor: checkout",
		"URL: https://shop.example.com",
		"HTTP status: 503",
		"Error: Expected status 200, got 503",
		"Response time: 812ms",
		"Region: weur",
		"Check server logs",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q", want)
		}
	}

	minimal := BuildPrompt(Request{Cause: storage.CauseTimeout, MonitorName: "db"})
	if strings.Contains(minimal, "HTTP status") || strings.Contains(minimal, "Region:") {
		t.Error("Expected optional details to be omitted")
	}
}

func TestOpenAI(t *testing.T) {
	t.Run("Valid reply is parsed", func(t *testing.T) {
		var got chatRequest
		var auth string
		o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("Unexpected path %s", r.URL.Path)
			}
			auth = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(completion(`{"title":"Checkout down","description":"5xx from origin","hint":"Roll back","severity":"HIGH"}`))
		})

		a, err := o.Annotate(context.Background(), Request{Cause: storage.CauseHTTP5xx, MonitorName: "checkout"})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if a.Title != "Checkout down" || a.Severity != storage.SeverityHigh {
			t.Errorf("Unexpected annotation: %+v", a)
		}
		if auth != "Bearer test-key" {
			t.Errorf("Expected bearer token, got %q", auth)
		}
		if got.Model != "test-model" || got.ResponseFormat["type"] != "json_object" || len(got.Messages) != 2 {
			t.Errorf("Unexpected request: %+v", got)
		}
	})

	t.Run("Unknown severity is rejected", func(t *testing.T) {
		o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(completion(`{"title":"t","description":"d","hint":"h","severity":"apocalyptic"}`))
		})
		if _, err := o.Annotate(context.Background(), Request{Cause: storage.CauseTimeout}); err == nil {
			t.Error("Expected an error for an invalid severity")
		}
	})

	t.Run("Non-JSON content is rejected", func(t *testing.T) {
		o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(completion("The server is down."))
		})
		if _, err := o.Annotate(context.Background(), Request{Cause: storage.CauseTimeout}); err == nil {
			t.Error("Expected an error for non-JSON content")
		}
	})

	t.Run("API error is reported", func(t *testing.T) {
		o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"bad key"}}`))
		})
		_, err := o.Annotate(context.Background(), Request{Cause: storage.CauseTimeout})
		if err == nil || !strings.Contains(err.Error(), "bad key") {
			t.Errorf("Expected API error message, got %v", err)
		}
	})

	t.Run("Cancelled context fails", func(t *testing.T) {
		o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := o.Annotate(ctx, Request{Cause: storage.CauseTimeout}); err == nil {
			t.Error("Expected an error when the context expires")
		}
	})
}

func TestNew(t *testing.T) {
	a := New(config.AnnotatorConfig{Enabled: false})
	if _, err := a.Annotate(context.Background(), Request{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Expected ErrDisabled, got %v", err)
	}
	if _, ok := New(config.AnnotatorConfig{Enabled: true, BaseURL: "http://localhost", Timeout: time.Second}).(*OpenAI); !ok {
		t.Error("Expected an OpenAI annotator when enabled")
	}
}
