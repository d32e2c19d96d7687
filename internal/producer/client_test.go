package producer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "tradealert/pkg/logx"
)

func TestAnalyze(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.Header.Get("X-Api-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch req.Ticker {
		case "AAPL":
			_, _ = w.Write([]byte(`{"decision":"BUY","summary":"up","analysis":{"confidence":0.8}}`))
		case "EMPTY":
			_, _ = w.Write([]byte(`{"decision":""}`))
		default:
			http.Error(w, "unknown ticker", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, map[string]string{"X-Api-Key": "k"}, time.Second, logx.Nop())
	d, err := c.Analyze(context.Background(), "AAPL", "2024-01-15")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if d.Decision != "BUY" || d.Summary != "up" || d.Analysis["confidence"] != 0.8 {
		t.Fatalf("decision=%+v", d)
	}
	for _, tk := range []string{"EMPTY", "BADTICK"} {
		if _, err := c.Analyze(context.Background(), tk, "2024-01-15"); err == nil {
			t.Fatalf("%s: expected error", tk)
		}
	}
}

func TestAnalyzeNoURL(t *testing.T) {
	t.Parallel()
	_, err := NewHTTPClient("", nil, 0, logx.Nop()).Analyze(context.Background(), "AAPL", "2024-01-15")
	if !errors.Is(err, ErrNoURL) {
		t.Fatalf("err=%v", err)
	}
}
