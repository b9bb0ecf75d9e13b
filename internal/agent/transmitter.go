package agent

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	internalerrors "github.com/hostwatch/hostwatch/internal/errors"
	models "github.com/hostwatch/hostwatch/internal/model"
)

// Transmitter delivers batches to the central server over HTTP.
//
// A batch is serialized once and retried with exponential backoff on
// retryable failures. Exhausting the retry budget discards the batch with a
// logged metric-loss event; it never terminates the agent.
type Transmitter struct {
	client   *http.Client
	url      string
	key      string
	attempts int
	backoff  time.Duration
	logger   *zap.SugaredLogger
	counters *Counters
}

// NewTransmitter creates a transmitter posting to <serverURL>/api/v1/updates.
func NewTransmitter(config *AgentConfig, logger *zap.SugaredLogger, counters *Counters) *Transmitter {
	return &Transmitter{
		client:   &http.Client{Timeout: 10 * time.Second},
		url:      config.ServerURL + "/api/v1/updates",
		key:      config.Key,
		attempts: config.RetryAttempts,
		backoff:  time.Duration(config.RetryBackoff) * time.Second,
		logger:   logger,
		counters: counters,
	}
}

// errServerUnavailable marks 5xx responses, which are retried like
// transport failures.
var errServerUnavailable = errors.New("server unavailable")

func isRetryableError(err error) bool {
	if errors.Is(err, errServerUnavailable) {
		return true
	}
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "connection reset by peer") {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func countHash(compressedBody []byte, key string) []byte {
	keyBytes := []byte(key)
	h := hmac.New(sha256.New, keyBytes)
	h.Write(compressedBody)
	return h.Sum(nil)
}

func countHashString(compressedBody []byte, key string) string {
	hash := countHash(compressedBody, key)
	return fmt.Sprintf("%x", hash)
}

func encodeBatch(batch models.Batch) ([]byte, error) {
	sendingData := make([]models.MetricsDTO, 0, batch.Len())
	for _, sample := range batch.Samples {
		sendingData = append(sendingData, sample.ToDTO())
	}
	jsonData, err := json.Marshal(sendingData)
	if err != nil {
		return nil, fmt.Errorf("error creating json: %w", err)
	}
	var compressedData bytes.Buffer
	gzipWriter := gzip.NewWriter(&compressedData)
	if _, err := gzipWriter.Write(jsonData); err != nil {
		return nil, fmt.Errorf("error compressing data: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, fmt.Errorf("error closing gzip writer: %w", err)
	}
	return compressedData.Bytes(), nil
}

// Send delivers one batch. On retry exhaustion the batch is dropped, the
// drop counter is advanced by the batch length and ErrRetryExhausted is
// returned wrapped around the last transport error.
func (t *Transmitter) Send(ctx context.Context, batch models.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	body, err := encodeBatch(batch)
	if err != nil {
		return err
	}
	var hash string
	if t.key != "" {
		hash = countHashString(body, t.key)
	}

	var lastErr error
	for attempt := 0; attempt <= t.attempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff: base, 2*base, 4*base, ...
			delay := t.backoff << (attempt - 1)
			t.logger.Infof("retry attempt %d after %v delay", attempt, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				t.dropBatch(batch, ctx.Err())
				return fmt.Errorf("%w: %v", internalerrors.ErrRetryExhausted, ctx.Err())
			}
		}

		lastErr = t.post(ctx, body, hash)
		if lastErr == nil {
			t.counters.Sent.Add(int64(batch.Len()))
			return nil
		}
		t.counters.TransmissionErrors.Add(1)
		if !isRetryableError(lastErr) {
			t.dropBatch(batch, lastErr)
			return lastErr
		}
		t.logger.Infof("retryable error occurred: %v", lastErr)
	}

	t.dropBatch(batch, lastErr)
	return fmt.Errorf("%w after %d attempts: %v", internalerrors.ErrRetryExhausted, t.attempts+1, lastErr)
}

func (t *Transmitter) post(ctx context.Context, body []byte, hash string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request for %s: %w", t.url, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept-Encoding", "gzip")
	request.Header.Set("Content-Encoding", "gzip")
	if hash != "" {
		request.Header.Set("HashSHA256", hash)
	}

	response, err := t.client.Do(request)
	if err != nil {
		return fmt.Errorf("error sending request for %s: %w", t.url, err)
	}
	respBody, err := io.ReadAll(response.Body)
	response.Body.Close()
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}
	if response.StatusCode >= 500 && response.StatusCode < 600 {
		return fmt.Errorf("%w: status %d: %s", errServerUnavailable, response.StatusCode, string(respBody))
	}
	return fmt.Errorf("server returned error status %d: %s", response.StatusCode, string(respBody))
}

func (t *Transmitter) dropBatch(batch models.Batch, cause error) {
	t.counters.DroppedRetryExhausted.Add(int64(batch.Len()))
	t.logger.Errorw("batch dropped, metric loss",
		"samples", batch.Len(),
		"cause", cause,
	)
}
