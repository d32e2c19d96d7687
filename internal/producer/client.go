// Package producer talks to the external decision service.
package producer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "tradealert/pkg/logx"
)

// Decision is one producer output for (ticker, date).
type Decision struct {
	Decision string         `json:"decision"`
	Summary  string         `json:"summary,omitempty"`
	Analysis map[string]any `json:"analysis,omitempty"`
}

var ErrNoURL = errors.New("producer url is not configured")

// HTTPClient posts {ticker, date} to the analysis service and decodes a Decision.
type HTTPClient struct {
	url     string
	headers map[string]string
	client  *http.Client
	log     logx.Logger
}

func NewHTTPClient(url string, headers map[string]string, timeout time.Duration, log logx.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTPClient{
		url:     strings.TrimSpace(url),
		headers: headers,
		client:  &http.Client{Timeout: timeout},
		log:     log.With(logx.String("comp", "producer")),
	}
}

type analyzeRequest struct {
	Ticker string `json:"ticker"`
	Date   string `json:"date"`
}

func (c *HTTPClient) Analyze(ctx context.Context, ticker, date string) (Decision, error) {
	if c.url == "" {
		return Decision{}, ErrNoURL
	}
	b, _ := json.Marshal(analyzeRequest{Ticker: ticker, Date: date})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("analyze %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Decision{}, fmt.Errorf("analyze %s: status %d: %s", ticker, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var d Decision
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&d); err != nil {
		return Decision{}, fmt.Errorf("analyze %s: decode: %w", ticker, err)
	}
	if strings.TrimSpace(d.Decision) == "" {
		return Decision{}, fmt.Errorf("analyze %s: empty decision", ticker)
	}
	c.log.Debug("analysis received",
		logx.String("ticker", ticker),
		logx.String("decision", d.Decision),
		logx.Duration("took", time.Since(start)),
	)
	return d, nil
}
