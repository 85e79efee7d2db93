package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testServer(t *testing.T, handler http.HandlerFunc) *HTTPGenerator {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &HTTPGenerator{URL: server.URL, APIKey: "test-key"}
}

func TestGenerate(t *testing.T) {
	g := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		var body struct {
			Prompt string `json:"prompt"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
			Style  string `json:"style"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if body.Prompt != "a dwarf at a forge" || body.Width != 1024 || body.Height != 576 {
			t.Errorf("unexpected request: %+v", body)
		}
		w.Write([]byte("fake image bytes"))
	})
	data, err := g.Generate(context.Background(), Request{
		Prompt: "a dwarf at a forge",
		Width:  1024,
		Height: 576,
		Style:  "oil painting",
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "fake image bytes" {
		t.Errorf("got %q", data)
	}
}

func TestGenerateStatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		want      error
		transient bool
	}{
		{http.StatusTooManyRequests, ErrQuotaExceeded, false},
		{http.StatusPaymentRequired, ErrQuotaExceeded, false},
		{http.StatusBadRequest, ErrInvalidInput, false},
		{http.StatusUnprocessableEntity, ErrInvalidInput, false},
		{http.StatusInternalServerError, nil, true},
		{http.StatusBadGateway, nil, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			g := testServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := g.Generate(context.Background(), Request{Prompt: "p", Width: 64, Height: 64})
			if err == nil {
				t.Fatal("no error returned")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
			if IsTransient(err) != tt.transient {
				t.Errorf("IsTransient(%v) = %v, want %v", err, IsTransient(err), tt.transient)
			}
		})
	}
}

func TestGenerateEmptyBodyIsCorrupt(t *testing.T) {
	g := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	_, err := g.Generate(context.Background(), Request{Prompt: "p", Width: 64, Height: 64})
	if !errors.Is(err, ErrCorruptArtifact) {
		t.Errorf("got %v, want corrupt artifact", err)
	}
}

func TestGenerateTimeout(t *testing.T) {
	g := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("too late"))
	})
	g.client.Timeout = 30 * time.Millisecond
	_, err := g.Generate(context.Background(), Request{Prompt: "p", Width: 64, Height: 64})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want timeout", err)
	}
	if !IsTransient(err) {
		t.Error("timeout not classified as transient")
	}
}

func TestGenerateInvalidRequest(t *testing.T) {
	g := &HTTPGenerator{URL: "http://127.0.0.1:1/never-called"}
	for _, req := range []Request{
		{Prompt: "", Width: 64, Height: 64},
		{Prompt: "p", Width: 0, Height: 64},
		{Prompt: "p", Width: 64, Height: -1},
	} {
		if _, err := g.Generate(context.Background(), req); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Generate(%+v) = %v, want invalid input", req, err)
		}
	}
}
