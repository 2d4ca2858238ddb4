package telephony

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

	"github.com/rs/zerolog/log"
)

const providerName = "voice_ai"

var ErrEmptyBatch = errors.New("telephony: batch has no recipients")

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

func (c *Client) Name() string { return providerName }

type batchPayload struct {
	RequestID  string      `json:"request_id,omitempty"`
	AgentID    string      `json:"agent_id"`
	From       string      `json:"from,omitempty"`
	RunAtUnix  int64       `json:"run_at_unix"`
	Recipients []Recipient `json:"call_objects"`
}

type batchResponse struct {
	BatchID  string `json:"batch_id"`
	Accepted int    `json:"accepted"`
	Message  string `json:"message"`
}

func (c *Client) SubmitBatch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	if len(req.Recipients) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}
	if c.baseURL == "" {
		return BatchResult{}, errors.New("telephony: api url not configured")
	}

	body, err := json.Marshal(batchPayload{
		RequestID:  req.RequestID,
		AgentID:    req.AgentID,
		From:       req.FromNumber,
		RunAtUnix:  req.RunAt.Unix(),
		Recipients: req.Recipients,
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("marshal batch: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/batches", bytes.NewReader(body))
	if err != nil {
		return BatchResult{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("telephony batch request error")
		return BatchResult{}, fmt.Errorf("batch request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		log.Error().Err(err).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("telephony batch response unreadable")
		return BatchResult{}, fmt.Errorf("read batch response: %w", err)
	}
	var parsed batchResponse
	_ = json.Unmarshal(data, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("message", parsed.Message).
			Dur("elapsed", elapsed).
			Msg("telephony batch rejected")
		return BatchResult{}, fmt.Errorf("batch rejected with status %d: %s", resp.StatusCode, parsed.Message)
	}

	if parsed.BatchID == "" {
		return BatchResult{}, errors.New("telephony: response missing batch_id")
	}

	log.Info().
		Str("batchId", parsed.BatchID).
		Int("recipients", len(req.Recipients)).
		Dur("elapsed", elapsed).
		Msg("telephony batch submitted")

	return BatchResult{BatchID: parsed.BatchID, Accepted: parsed.Accepted}, nil
}
