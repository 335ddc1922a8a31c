package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront-agent/internal/domain"
	"storefront-agent/internal/infra/config"
)

func newOllamaTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"models":[{"name":"llama3.2:latest","size":2019393189},{"name":"qwen2.5:7b","size":4683087332}]}`))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("ollama requests should not carry auth, got %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"id":"o1","model":"llama3.2","choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestOllamaProviderChat(t *testing.T) {
	server := newOllamaTestServer(t)
	p := NewOllamaProvider(config.ProviderConfig{Name: "ollama", BaseURL: server.URL + "/", Model: "llama3.2"}, nil)

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "hello" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if p.Name() != "ollama" {
		t.Errorf("Name = %q", p.Name())
	}
}

func TestOllamaListModels(t *testing.T) {
	server := newOllamaTestServer(t)
	p := NewOllamaProvider(config.ProviderConfig{Name: "ollama", BaseURL: server.URL, Model: "llama3.2"}, nil)

	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[1].Name != "qwen2.5:7b" {
		t.Errorf("unexpected models: %+v", models)
	}
}

func TestOllamaPing(t *testing.T) {
	server := newOllamaTestServer(t)

	tests := []struct {
		model   string
		wantErr bool
	}{
		{"llama3.2", false},
		{"qwen2.5:7b", false},
		{"mistral", true},
	}
	for _, tt := range tests {
		p := NewOllamaProvider(config.ProviderConfig{Name: "ollama", BaseURL: server.URL, Model: tt.model}, nil)
		err := p.Ping(context.Background())
		if (err != nil) != tt.wantErr {
			t.Errorf("Ping(%q) error = %v, wantErr %v", tt.model, err, tt.wantErr)
		}
	}
}

func TestOllamaPingUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	p := NewOllamaProvider(config.ProviderConfig{Name: "ollama", BaseURL: url, Model: "llama3.2"}, nil)
	err := p.Ping(context.Background())
	if !errors.Is(err, domain.ErrProviderError) {
		t.Errorf("expected ErrProviderError, got %v", err)
	}
}

func TestOllamaDefaultTimeouts(t *testing.T) {
	p := NewOllamaProvider(config.ProviderConfig{Name: "ollama", Model: "llama3.2"}, nil)
	if p.baseURL != "http://localhost:11434" {
		t.Errorf("baseURL = %q", p.baseURL)
	}
	if want := ollamaDefaultConnTimeout + ollamaDefaultRespTimeout; p.client.Timeout != want {
		t.Errorf("client timeout = %v, want %v", p.client.Timeout, want)
	}
}
