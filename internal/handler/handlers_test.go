package handler

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hostwatch/hostwatch/internal/config"
	models "github.com/hostwatch/hostwatch/internal/model"
	"github.com/hostwatch/hostwatch/internal/repository"
	"github.com/hostwatch/hostwatch/internal/service"
)

func newTestServer(t *testing.T, cfg *config.ServerConfig) (*Server, *service.MetricsService) {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	metricService := service.NewMetricsService(repository.NewMemStorage())
	if cfg == nil {
		cfg = &config.ServerConfig{Address: "localhost:8080", StoreInterval: 300}
	}
	return &Server{
		Service: metricService,
		Logger:  logger.Sugar(),
		Config:  cfg,
	}, metricService
}

func testRequest(t *testing.T, ts *httptest.Server, method,
	path string, body io.Reader) *http.Response {
	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)

	return resp
}

func TestUpdateHandler(t *testing.T) {
	server, _ := newTestServer(t, nil)
	ts := httptest.NewServer(Router(server))
	defer ts.Close()

	tests := []struct {
		name       string
		endpoint   string
		body       string
		method     string
		statusCode int
	}{
		{
			name:       "positive gauge test",
			endpoint:   "/update",
			body:       `{"id":"cpu.usage_percent","type":"gauge","value":42.5}`,
			method:     http.MethodPost,
			statusCode: http.StatusOK,
		},
		{
			name:       "positive counter test",
			endpoint:   "/update",
			body:       `{"id":"PollCount","type":"counter","delta":123}`,
			method:     http.MethodPost,
			statusCode: http.StatusOK,
		},
		{
			name:       "bad request gauge test",
			endpoint:   "/update",
			body:       `{"id":"cpu.usage_percent","type":"gauge"}`, // Missing value
			method:     http.MethodPost,
			statusCode: http.StatusBadRequest,
		},
		{
			name:       "bad request counter test",
			endpoint:   "/update",
			body:       `{"id":"PollCount","type":"counter"}`, // Missing delta
			method:     http.MethodPost,
			statusCode: http.StatusBadRequest,
		},
		{
			name:       "invalid json test",
			endpoint:   "/update",
			body:       `{"invalid": json`,
			method:     http.MethodPost,
			statusCode: http.StatusBadRequest,
		},
		{
			name:       "invalid metric type test",
			endpoint:   "/update",
			body:       `{"id":"mystery","type":"invalid","value":123.0}`,
			method:     http.MethodPost,
			statusCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = bytes.NewBufferString(tt.body)
			}
			r := testRequest(t, ts, tt.method, tt.endpoint, body)
			defer r.Body.Close()
			assert.Equal(t, tt.statusCode, r.StatusCode)
		})
	}
}

func TestUpdateHandler_HostQualifiesName(t *testing.T) {
	server, metricService := newTestServer(t, nil)
	ts := httptest.NewServer(Router(server))
	defer ts.Close()

	body := `{"id":"memory.used_percent","type":"gauge","value":61.2,"host":"web-01"}`
	r := testRequest(t, ts, http.MethodPost, "/update", bytes.NewBufferString(body))
	defer r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)

	val, err := metricService.GetMetricByName(context.Background(), "web-01:memory.used_percent")
	require.NoError(t, err)
	assert.Equal(t, 61.2, val)
}

func TestGetHandler(t *testing.T) {
	server, metricService := newTestServer(t, nil)
	err := metricService.SetMetric(context.Background(), "disk.used_percent", 42.5, models.Gauge)
	require.NoError(t, err)

	ts := httptest.NewServer(Router(server))
	defer ts.Close()

	r := testRequest(t, ts, http.MethodGet, "/value/gauge/disk.used_percent", nil)
	defer r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
	bodyBytes, _ := io.ReadAll(r.Body)
	assert.Contains(t, string(bodyBytes), "42.5")

	r2 := testRequest(t, ts, http.MethodGet, "/value/gauge/unknown.metric", nil)
	defer r2.Body.Close()
	assert.Equal(t, http.StatusNotFound, r2.StatusCode)
}

func TestGetValueHandler(t *testing.T) {
	server, metricService := newTestServer(t, nil)
	err := metricService.SetMetric(context.Background(), "PollCount", int64(10), models.Counter)
	require.NoError(t, err)

	ts := httptest.NewServer(Router(server))
	defer ts.Close()

	requestBody := `{"id":"PollCount","type":"counter"}`
	r := testRequest(t, ts, http.MethodPost, "/value", bytes.NewBufferString(requestBody))
	defer r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
	var resp models.MetricsDTO
	err = json.NewDecoder(r.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, int64(10), *resp.Delta)

	requestBody2 := `{"id":"NonExistent","type":"counter"}`
	r2 := testRequest(t, ts, http.MethodPost, "/value", bytes.NewBufferString(requestBody2))
	defer r2.Body.Close()
	assert.Equal(t, http.StatusNotFound, r2.StatusCode)
}

func TestGetListHandler(t *testing.T) {
	server, metricService := newTestServer(t, nil)
	_ = metricService.SetMetric(context.Background(), "load.1m", 1.0, models.Gauge)
	_ = metricService.SetMetric(context.Background(), "PollCount", int64(2), models.Counter)

	ts := httptest.NewServer(Router(server))
	defer ts.Close()

	r := testRequest(t, ts, http.MethodGet, "/", nil)
	defer r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
	bodyBytes, _ := io.ReadAll(r.Body)
	bodyStr := string(bodyBytes)
	assert.Contains(t, bodyStr, "load.1m")
	assert.Contains(t, bodyStr, "PollCount")
}

func TestPingHandler(t *testing.T) {
	server, _ := newTestServer(t, nil)
	ts := httptest.NewServer(Router(server))
	defer ts.Close()

	r := testRequest(t, ts, http.MethodGet, "/ping", nil)
	defer r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
}

func TestBatchUpdateHandler(t *testing.T) {
	server, metricService := newTestServer(t, nil)
	ts := httptest.NewServer(Router(server))
	defer ts.Close()

	val := 3.14
	delta := int64(5)
	batch := []models.MetricsDTO{
		{ID: "cpu.usage_percent", MType: models.Gauge, Value: &val, Host: "web-01"},
		{ID: "PollCount", MType: models.Counter, Delta: &delta, Host: "web-01"},
	}
	data, err := json.Marshal(batch)
	require.NoError(t, err)
	r := testRequest(t, ts, http.MethodPost, "/api/v1/updates", bytes.NewReader(data))
	defer r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)

	m1, err := metricService.GetMetricByName(context.Background(), "web-01:cpu.usage_percent")
	require.NoError(t, err)
	assert.Equal(t, 3.14, m1)
	m2, err := metricService.GetMetricByName(context.Background(), "web-01:PollCount")
	require.NoError(t, err)
	assert.Equal(t, int64(5), m2)

	r2 := testRequest(t, ts, http.MethodPost, "/api/v1/updates", bytes.NewReader([]byte(`[{"invalid": json`)))
	defer r2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r2.StatusCode)

	r3 := testRequest(t, ts, http.MethodPost, "/api/v1/updates", bytes.NewReader([]byte(`[]`)))
	defer r3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r3.StatusCode)
}

func TestBatchUpdateHandler_GzipAndSignature(t *testing.T) {
	key := "test-signing-key"
	server, metricService := newTestServer(t, &config.ServerConfig{
		Address:       "localhost:8080",
		StoreInterval: 300,
		Key:           key,
	})
	ts := httptest.NewServer(Router(server))
	defer ts.Close()

	val := 99.9
	batch := []models.MetricsDTO{{ID: "swap.used_percent", MType: models.Gauge, Value: &val, Host: "db-01"}}
	data, err := json.Marshal(batch)
	require.NoError(t, err)

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	_, err = zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	// The signature covers the compressed bytes
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/updates", bytes.NewReader(compressed.Bytes()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("HashSHA256", hex.EncodeToString(CalculatedHash(compressed.Bytes(), key)))

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := metricService.GetMetricByName(context.Background(), "db-01:swap.used_percent")
	require.NoError(t, err)
	assert.Equal(t, 99.9, stored)

	// A tampered signature is rejected
	req2, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/updates", bytes.NewReader(compressed.Bytes()))
	require.NoError(t, err)
	req2.Header.Set("Content-Encoding", "gzip")
	req2.Header.Set("HashSHA256", hex.EncodeToString(CalculatedHash([]byte("other"), key)))

	resp2, err := ts.Client().Do(req2)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestUpdateHandlerWithParams(t *testing.T) {
	server, metricService := newTestServer(t, nil)
	ts := httptest.NewServer(Router(server))
	defer ts.Close()

	r := testRequest(t, ts, http.MethodPost, "/update/gauge/cpu.count/7.5", nil)
	defer r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
	val, err := metricService.GetMetricByName(context.Background(), "cpu.count")
	require.NoError(t, err)
	assert.Equal(t, 7.5, val)

	r2 := testRequest(t, ts, http.MethodPost, "/update/counter/restarts/10", nil)
	defer r2.Body.Close()
	assert.Equal(t, http.StatusOK, r2.StatusCode)
	val2, err := metricService.GetMetricByName(context.Background(), "restarts")
	require.NoError(t, err)
	assert.Equal(t, int64(10), val2)

	r3 := testRequest(t, ts, http.MethodPost, "/update/gauge/bad/not_a_number", nil)
	defer r3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r3.StatusCode)

	r4 := testRequest(t, ts, http.MethodPost, "/update/counter/bad/not_a_number", nil)
	defer r4.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r4.StatusCode)

	r5 := testRequest(t, ts, http.MethodPost, "/update/invalid/bad/123", nil)
	defer r5.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r5.StatusCode)
}

func TestCounterAccumulates(t *testing.T) {
	server, metricService := newTestServer(t, nil)
	ts := httptest.NewServer(Router(server))
	defer ts.Close()

	for i := 0; i < 3; i++ {
		r := testRequest(t, ts, http.MethodPost, "/update",
			bytes.NewBufferString(`{"id":"PollCount","type":"counter","delta":5}`))
		r.Body.Close()
		require.Equal(t, http.StatusOK, r.StatusCode)
	}
	val, err := metricService.GetMetricByName(context.Background(), "PollCount")
	require.NoError(t, err)
	assert.Equal(t, int64(15), val)
}

func TestQualifyName(t *testing.T) {
	assert.Equal(t, "web-01:cpu.usage_percent", QualifyName("web-01", "cpu.usage_percent"))
	assert.Equal(t, "cpu.usage_percent", QualifyName("", "cpu.usage_percent"))
}

func TestVerifyRequestHash(t *testing.T) {
	body := []byte("payload")
	key := "secret"
	valid := hex.EncodeToString(CalculatedHash(body, key))

	assert.NoError(t, VerifyRequestHash(body, valid, key))
	assert.NoError(t, VerifyRequestHash(body, "", key))
	assert.NoError(t, VerifyRequestHash(body, valid, ""))
	assert.Error(t, VerifyRequestHash(body, "not-hex", key))
	assert.Error(t, VerifyRequestHash([]byte("tampered"), valid, key))
}
