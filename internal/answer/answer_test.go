package answer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/gakumon/internal/config"
)

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("What is ATP?", []string{"atp stores energy", "cells use atp"}, 0)
	for _, want := range []string{
		"You are an academic assistant.",
		"Context:\natp stores energy cells use atp\n",
		"Question: What is ATP?\nAnswer:",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestJoinContext(t *testing.T) {
	tests := []struct {
		name     string
		passages []string
		max      int
		want     string
	}{
		{"unbounded", []string{"ab", "cd"}, 0, "ab cd"},
		{"fits exactly", []string{"ab", "cd"}, 5, "ab cd"},
		{"drops overflow", []string{"ab", "cd", "ef"}, 6, "ab cd"},
		{"cuts first", []string{"abcdef"}, 3, "abc"},
		{"runes not bytes", []string{"日本語", "x"}, 4, "日本語"},
		{"empty", nil, 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinContext(tt.passages, tt.max); got != tt.want {
				t.Errorf("joinContext = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewGenerator_notConfigured(t *testing.T) {
	if _, err := NewGenerator(Options{Model: "m"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("missing key: got %v", err)
	}
	if _, err := NewGenerator(Options{APIKey: "k"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("missing model: got %v", err)
	}
	if _, err := FromConfig(config.GenerationConfig{Enabled: false, Model: "m"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("disabled: got %v", err)
	}
}

func TestAnswer(t *testing.T) {
	var gotReq struct {
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": "  ATP is the energy currency.  "}}},
		})
	}))
	defer srv.Close()

	g, err := NewGenerator(Options{
		BaseURL:     srv.URL + "/api/v1/",
		APIKey:      "secret",
		Model:       "mistralai/mistral-7b-instruct",
		Temperature: DefaultTemperature,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := g.Answer(context.Background(), "What is ATP?", []string{"atp stores energy"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "ATP is the energy currency." {
		t.Errorf("answer = %q", got)
	}
	if auth != "Bearer secret" {
		t.Errorf("Authorization = %q", auth)
	}
	if gotReq.Model != "mistralai/mistral-7b-instruct" || gotReq.Temperature != DefaultTemperature {
		t.Errorf("request model=%q temperature=%v", gotReq.Model, gotReq.Temperature)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" || !strings.Contains(gotReq.Messages[0].Content, "atp stores energy") {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
}

func TestAnswer_failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"provider error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
		}},
		{"empty choices", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			g, err := NewGenerator(Options{BaseURL: srv.URL, APIKey: "k", Model: "m"})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := g.Answer(context.Background(), "q", []string{"p"}); !errors.Is(err, ErrGenerationFailed) {
				t.Errorf("expected ErrGenerationFailed, got %v", err)
			}
		})
	}
}
