package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"crawlerd/internal/compression"
	"crawlerd/internal/models"
)

const (
	eventsPath = "/events"
	pingPath   = "/ping"

	// maxErrorBody bounds how much of a failed response is kept in SendError.
	maxErrorBody = 4 << 10
)

// Transport ships batches to the collection endpoint.
type Transport interface {
	Send(ctx context.Context, events []*models.CrawlerEvent) error
	Ping(ctx context.Context) (*models.PingResult, error)
}

// SendError describes a failed delivery. StatusCode is 0 when no response
// was received.
type SendError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *SendError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("send failed: %s", e.Err)
	case e.Message != "":
		return fmt.Sprintf("send failed with status %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("send failed with status %d", e.StatusCode)
	}
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Retryable is false for client errors the endpoint will keep refusing.
func (e *SendError) Retryable() bool {
	if e.StatusCode == 0 || e.StatusCode >= 500 {
		return true
	}
	return e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests
}

// isRetryable treats unknown errors as transient.
func isRetryable(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

type HTTPTransport struct {
	endpoint   string
	apiKey     string
	client     *http.Client
	compressor compression.CompressorInterface
}

// NewHTTPTransport posts to endpoint+"/events". A nil compressor sends plain
// JSON.
func NewHTTPTransport(endpoint, apiKey string, client *http.Client, compressor compression.CompressorInterface) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		client:     client,
		compressor: compressor,
	}
}

func (t *HTTPTransport) Send(ctx context.Context, events []*models.CrawlerEvent) error {
	items := make([]*models.FlatEventDTO, len(events))
	for i, ev := range events {
		items[i] = models.ToFlatDTO(ev)
	}
	body, err := json.Marshal(struct {
		Events []*models.FlatEventDTO `json:"events"`
	}{Events: items})
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	encoding := ""
	if t.compressor != nil {
		if body, err = t.compressor.Compress(body); err != nil {
			return fmt.Errorf("failed to compress events: %w", err)
		}
		encoding = compression.ContentEncoding
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+eventsPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &SendError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return &SendError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
}

func (t *HTTPTransport) Ping(ctx context.Context) (*models.PingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+pingPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &SendError{Err: err}
	}
	defer resp.Body.Close()

	var result models.PingResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&result); err != nil {
		return nil, &SendError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode ping response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return &result, &SendError{StatusCode: resp.StatusCode, Message: result.Error}
	}
	return &result, nil
}

func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body models.ErrorResponse
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
