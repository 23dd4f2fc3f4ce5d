package deepseek

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"matador/internal/core"
	"matador/internal/extractor"
)

func TestExtract(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"action\":\"register_transaction\",\"transaction\":{\"type\":\"ant_expense\",\"category\":\"Café o bebida diaria\",\"amount\":25,\"description\":\"café\"},\"response\":\"¡Listo!\",\"advice\":\"Prepara café en casa\"}"}}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "secret", URL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	in, err := c.Extract(context.Background(), "me tomé un café de 25", extractor.Context{WeeklyAntCount: 2, WeeklyAntTotal: core.Cents(5000)})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if in.Action != extractor.ActionRegister || in.Advice != "Prepara café en casa" {
		t.Fatalf("unexpected intent %+v", in)
	}
	if got.Model != DefaultModel || len(got.Messages) != 2 || got.Messages[1].Content != "me tomé un café de 25" {
		t.Fatalf("unexpected request %+v", got)
	}
	if !strings.Contains(got.Messages[0].Content, "Esta semana lleva 2 gastos hormiga") {
		t.Fatalf("system prompt lacks user context")
	}
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"boom"}}`))
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}},
		{"prose content", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[{"message":{"content":"no sé"}}]}`))
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			c, err := New(Config{APIKey: "k", URL: srv.URL, Timeout: 50 * time.Millisecond})
			if err != nil {
				t.Fatal(err)
			}
			_, err = c.Extract(context.Background(), "hola", extractor.Context{})
			if !errors.Is(err, extractor.ErrExtractorFailure) {
				t.Fatalf("expected ErrExtractorFailure, got %v", err)
			}
		})
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without API key")
	}
}
