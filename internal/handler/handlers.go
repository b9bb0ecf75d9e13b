// Package handler wires the central server's HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hostwatch/hostwatch/internal/audit"
	"github.com/hostwatch/hostwatch/internal/config"
	internalerrors "github.com/hostwatch/hostwatch/internal/errors"
	middlewareinternal "github.com/hostwatch/hostwatch/internal/middleware"
	models "github.com/hostwatch/hostwatch/internal/model"
	"github.com/hostwatch/hostwatch/internal/service"
	"github.com/hostwatch/hostwatch/internal/telemetry"
)

// Server bundles the collaborators every handler needs.
type Server struct {
	Service   *service.MetricsService
	Logger    *zap.SugaredLogger
	Config    *config.ServerConfig
	Telemetry *telemetry.Metrics
	Audit     audit.Logger
}

// Router builds the chi router for the central server.
func Router(s *Server) chi.Router {
	router := chi.NewRouter()
	router.Use(middlewareinternal.LoggingMiddleware(s.Logger))
	router.Use(middlewareinternal.GzipMiddleware)
	router.Use(middleware.StripSlashes)
	router.Use(middleware.Timeout(15 * time.Second))

	// Batch ingestion reads the raw body itself: the HMAC signature covers
	// the compressed bytes, so decompression must happen after verification.
	router.Post("/api/v1/updates", s.BatchUpdateHandler)

	router.Group(func(r chi.Router) {
		r.Use(middlewareinternal.DecompressMiddleware)
		r.Post("/update/{type}/{metric}/{value}", s.UpdateHandlerWithParams)
		r.Post("/update", s.UpdateHandler)
		r.Post("/value", s.GetValue)
	})

	router.Get("/value/{type}/{name}", s.GetHandler)
	router.Get("/ping", s.PingHandler)
	router.Get("/", s.GetListHandler)
	if s.Telemetry != nil {
		router.Method(http.MethodGet, "/metrics", s.Telemetry.Handler())
	}
	return router
}

// BatchUpdateHandler ingests a gzip JSON batch of samples from an agent.
//
// Gauges replace the stored value, counters accumulate. Metric names are
// qualified with the reporting host so several agents can share one server.
func (s *Server) BatchUpdateHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := ReadRequestBody(r)
	if err != nil {
		s.badRequest(w, "Failed to read request body: "+err.Error())
		return
	}
	if err := VerifyRequestHash(body, r.Header.Get("HashSHA256"), s.Config.Key); err != nil {
		if s.Telemetry != nil {
			s.Telemetry.HashFailures.Inc()
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Header.Get("Content-Encoding") == "gzip" {
		body, err = DecompressBody(body)
		if err != nil {
			s.badRequest(w, err.Error())
			return
		}
	}

	var metrics []models.MetricsDTO
	if err := json.Unmarshal(body, &metrics); err != nil {
		s.badRequest(w, "Invalid JSON format: "+err.Error())
		return
	}

	preparedMetrics := make([]models.Metric, 0, len(metrics))
	names := make([]string, 0, len(metrics))
	host := ""
	for _, d := range metrics {
		name := QualifyName(d.Host, d.ID)
		if d.Host != "" {
			host = d.Host
		}
		if d.Value != nil {
			preparedMetrics = append(preparedMetrics, models.Metric{
				Name:  name,
				Type:  d.MType,
				Value: *d.Value,
			})
			names = append(names, name)
		}
		if d.Delta != nil {
			preparedMetrics = append(preparedMetrics, models.Metric{
				Name:  name,
				Type:  d.MType,
				Value: *d.Delta,
			})
			names = append(names, name)
		}
	}
	if len(preparedMetrics) == 0 {
		s.badRequest(w, "Empty batch")
		return
	}

	if err := s.Service.SetMetrics(r.Context(), preparedMetrics); err != nil {
		s.Logger.Info(err)
		if s.Telemetry != nil {
			s.Telemetry.StorageErrors.Inc()
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	if s.Telemetry != nil {
		s.Telemetry.BatchesIngested.Inc()
		s.Telemetry.SamplesIngested.Add(float64(len(preparedMetrics)))
		s.Telemetry.IngestSeconds.Observe(time.Since(start).Seconds())
	}
	if s.Audit != nil {
		s.Audit.Log(host, names, r.RemoteAddr)
	}
	s.saveIfSynchronous(r)
}

// PingHandler checks storage health.
func (s *Server) PingHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.Ping(r.Context()); err != nil {
		s.Logger.Errorf("storage ping: %v", err)
		http.Error(w, "Failed to connect to storage: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// UpdateHandler stores a single metric from a JSON body.
func (s *Server) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	var metrics models.MetricsDTO
	if err := json.NewDecoder(r.Body).Decode(&metrics); err != nil {
		s.badRequest(w, "Invalid JSON format: "+err.Error())
		return
	}

	name := QualifyName(metrics.Host, metrics.ID)
	var err error
	switch metrics.MType {
	case models.Gauge:
		if metrics.Value == nil {
			s.badRequest(w, "Gauge metrics must have a value")
			return
		}
		err = s.Service.SetMetric(r.Context(), name, *metrics.Value, metrics.MType)
	case models.Counter:
		if metrics.Delta == nil {
			s.badRequest(w, "Counter metrics must have a delta")
			return
		}
		err = s.Service.SetMetric(r.Context(), name, *metrics.Delta, metrics.MType)
	default:
		s.badRequest(w, "Invalid metric type")
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
	if s.Audit != nil {
		s.Audit.Log(metrics.Host, []string{name}, r.RemoteAddr)
	}
	s.saveIfSynchronous(r)
}

// UpdateHandlerWithParams stores a single metric passed via URL parameters.
func (s *Server) UpdateHandlerWithParams(w http.ResponseWriter, r *http.Request) {
	metricType := chi.URLParam(r, "type")
	metricName := chi.URLParam(r, "metric")
	metricValue := chi.URLParam(r, "value")
	if metricName == "" {
		http.Error(w, "Metric name not found ", http.StatusNotFound)
		return
	}
	var value any
	switch metricType {
	case models.Gauge:
		floatVal, floatErr := strconv.ParseFloat(metricValue, 64)
		if floatErr != nil {
			s.badRequest(w, "Metric value should be a float")
			return
		}
		value = floatVal
	case models.Counter:
		intVal, intErr := strconv.ParseInt(metricValue, 10, 64)
		if intErr != nil {
			s.badRequest(w, "Metric value should be an integer")
			return
		}
		value = intVal
	default:
		s.badRequest(w, "Invalid metric type")
		return
	}
	if err := s.Service.SetMetric(r.Context(), metricName, value, metricType); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
	s.saveIfSynchronous(r)
}

// GetValue returns one metric as JSON, looked up by a MetricsDTO request body.
func (s *Server) GetValue(w http.ResponseWriter, r *http.Request) {
	var metrics models.MetricsDTO
	if err := json.NewDecoder(r.Body).Decode(&metrics); err != nil {
		s.badRequest(w, "Invalid JSON format: "+err.Error())
		return
	}
	metrics.ID = QualifyName(metrics.Host, metrics.ID)
	responseMetric, err := s.Service.GetMetric(r.Context(), metrics)
	if err != nil {
		if !errors.Is(err, internalerrors.ErrMetricNotFound) {
			s.Logger.Errorf("error occurred %v", err)
		}
		http.Error(w, "Metric name not found ", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(responseMetric)
}

// GetHandler returns the raw value of one metric looked up by name.
func (s *Server) GetHandler(w http.ResponseWriter, r *http.Request) {
	metricName := chi.URLParam(r, "name")
	metricValue, err := s.Service.GetMetricByName(r.Context(), metricName)
	if err != nil {
		http.Error(w, "Metric name not found ", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%v", metricValue)
}

// GetListHandler renders every stored metric as plain text.
func (s *Server) GetListHandler(w http.ResponseWriter, r *http.Request) {
	var result string
	metrics, _ := s.Service.ListMetrics(r.Context())

	for _, v := range metrics {
		result += fmt.Sprintf("%s: %v\n", v.Name, v.Value)
	}
	w.Header().Set("Content-Type", "text/html")
	io.WriteString(w, result)
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	if s.Telemetry != nil {
		s.Telemetry.BadRequests.Inc()
	}
	http.Error(w, msg, http.StatusBadRequest)
}

// saveIfSynchronous flushes the in-memory snapshot right away when the store
// interval is zero.
func (s *Server) saveIfSynchronous(r *http.Request) {
	if s.Config.StoreInterval == 0 && s.Service.IsMemStorage() {
		if err := s.Service.SaveMetrics(r.Context(), s.Config.FileStoragePath); err != nil {
			s.Logger.Infof("couldn't save to file %s", err)
		}
	}
}
