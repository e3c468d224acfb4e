package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/basel-ax/promptpix/internal/domain"
)

func TestClientQuery(t *testing.T) {
	image := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Bearer token, got %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}

		var payload Payload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if payload.Inputs != "a kitten in space" {
			t.Errorf("Unexpected inputs: %q", payload.Inputs)
		}

		w.Header().Set("Content-Type", "image/png")
		w.Write(image)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	img, err := client.Query(context.Background(), Payload{Inputs: "a kitten in space"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if string(img.Data) != string(image) {
		t.Errorf("Expected image bytes %v, got %v", image, img.Data)
	}
	if img.ContentType != "image/png" {
		t.Errorf("Expected image/png, got %s", img.ContentType)
	}
}

func TestClientQueryStatusErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		header      map[string]string
		body        string
		rateLimited bool
		retryAfter  time.Duration
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"rate limit"}`, rateLimited: true},
		{name: "rate limited with retry-after", status: http.StatusTooManyRequests, header: map[string]string{"Retry-After": "7"}, rateLimited: true, retryAfter: 7 * time.Second},
		{name: "model loading", status: http.StatusServiceUnavailable, body: `{"error":"Model is currently loading","estimated_time":20}`},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"Invalid credentials"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL, "k").Query(context.Background(), Payload{Inputs: "p"})

			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("Expected *StatusError, got %v", err)
			}
			if statusErr.Code != tt.status {
				t.Errorf("Expected code %d, got %d", tt.status, statusErr.Code)
			}
			if statusErr.RateLimited() != tt.rateLimited {
				t.Errorf("Expected RateLimited %v", tt.rateLimited)
			}
			if statusErr.RetryAfter != tt.retryAfter {
				t.Errorf("Expected RetryAfter %s, got %s", tt.retryAfter, statusErr.RetryAfter)
			}
			if !strings.Contains(statusErr.Error(), tt.body) {
				t.Errorf("Expected error to carry body %q, got %q", tt.body, statusErr.Error())
			}
		})
	}
}

func TestClientQueryMalformedSuccess(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		_, err := NewClient(server.URL, "k").Query(context.Background(), Payload{Inputs: "p"})
		if !errors.Is(err, domain.ErrEmptyImage) {
			t.Errorf("Expected ErrEmptyImage, got %v", err)
		}
	})

	t.Run("json body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Write([]byte(`{"error":"something odd"}`))
		}))
		defer server.Close()

		_, err := NewClient(server.URL, "k").Query(context.Background(), Payload{Inputs: "p"})
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("Expected *StatusError, got %v", err)
		}
		if statusErr.Code != http.StatusOK {
			t.Errorf("Expected code 200, got %d", statusErr.Code)
		}
	})

	t.Run("too large", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write(make([]byte, 64))
		}))
		defer server.Close()

		_, err := NewClient(server.URL, "k", WithMaxImageBytes(16)).Query(context.Background(), Payload{Inputs: "p"})
		if err == nil || !strings.Contains(err.Error(), "exceeds 16 bytes") {
			t.Errorf("Expected size error, got %v", err)
		}
	})
}

func TestClientQueryTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url, "k").Query(context.Background(), Payload{Inputs: "p"})
	if err == nil {
		t.Fatal("Expected transport error")
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		t.Errorf("Transport failure should not be a StatusError: %v", err)
	}
	if !strings.Contains(err.Error(), "failed to send request") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestClientQueryTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewClient(server.URL, "k", WithTimeout(50*time.Millisecond)).Query(context.Background(), Payload{Inputs: "p"})
	if err == nil {
		t.Fatal("Expected timeout error")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("Expected 0 for empty header, got %s", got)
	}
	if got := parseRetryAfter("12"); got != 12*time.Second {
		t.Errorf("Expected 12s, got %s", got)
	}
	if got := parseRetryAfter("-3"); got != 0 {
		t.Errorf("Expected 0 for negative seconds, got %s", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("Expected 0 for garbage, got %s", got)
	}

	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 80*time.Second || got > 90*time.Second {
		t.Errorf("Expected about 90s for HTTP date, got %s", got)
	}
}
