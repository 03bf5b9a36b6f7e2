// Package analysis is the boundary to the natural-language analysis
// collaborator. The pipeline calls it on a best-effort basis; any failure
// means the alert simply goes out without an analysis text.
package analysis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fleetwatch/core/encoding/json"
	"github.com/fleetwatch/core/log"
)

// Analyzer produces a short human-readable explanation for an error text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (string, error)
}

// Noop is an Analyzer that analyzes nothing. It is used when no analysis
// service is configured.
type Noop struct{}

func (n *Noop) Analyze(ctx context.Context, text string) (string, error) {
	return "", nil
}

type ClientConfig struct {
	// URL is the base address of the analysis service.
	URL string

	Client *http.Client
	Logger log.Logger
}

type client struct {
	url string

	client *http.Client

	logger log.Logger
}

// NewClient returns an Analyzer that asks an external HTTP service. The
// service contract is a single POST endpoint taking {"text": ...} and
// returning {"analysis": ...}.
func NewClient(config ClientConfig) (Analyzer, error) {
	c := &client{
		url:    config.URL,
		client: config.Client,
		logger: config.Logger,
	}

	if len(c.url) == 0 {
		return nil, fmt.Errorf("an URL for the analysis service is required")
	}

	if !strings.HasSuffix(c.url, "/") {
		c.url = c.url + "/"
	}

	if c.logger == nil {
		c.logger = log.New("")
	}

	if c.client == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.MaxIdleConns = 10
		tr.IdleConnTimeout = 30 * time.Second

		c.client = &http.Client{
			Transport: tr,
		}
	}

	return c, nil
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Analysis string `json:"analysis"`
}

func (c *client) Analyze(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"analyze", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return "", err
	}

	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 64*1024))
	if err != nil {
		return "", err
	}

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("analysis service returned status %d", res.StatusCode)
	}

	response := analyzeResponse{}

	if err := json.Unmarshal(data, &response); err != nil {
		return "", json.FormatError(data, err)
	}

	return response.Analysis, nil
}

type timeoutAnalyzer struct {
	analyzer Analyzer
	timeout  time.Duration
}

// WithTimeout wraps an Analyzer such that every call is bounded by the given
// timeout on top of whatever deadline the caller's context carries.
func WithTimeout(analyzer Analyzer, timeout time.Duration) Analyzer {
	if timeout <= 0 {
		return analyzer
	}

	return &timeoutAnalyzer{
		analyzer: analyzer,
		timeout:  timeout,
	}
}

func (t *timeoutAnalyzer) Analyze(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return t.analyzer.Analyze(ctx, text)
}
