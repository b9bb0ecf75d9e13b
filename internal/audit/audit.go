// Package audit provides audit logging for ingestion operations.
//
// It implements a publish-subscribe pattern: handlers publish events into a
// channel, a broadcaster fans them out to file and HTTP subscribers.
package audit

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	models "github.com/hostwatch/hostwatch/internal/model"
)

// Logger is an interface for recording audit events.
type Logger interface {
	// Log sends an audit event with the reporting host, affected metric
	// names and the client IP address.
	Log(host string, metrics []string, ipAddress string)
}

type auditLogger struct {
	eventChan chan models.AuditEvent
	logger    *zap.SugaredLogger
}

// NewLogger creates a Logger that publishes events to the provided channel.
func NewLogger(eventChan chan models.AuditEvent, logger *zap.SugaredLogger) Logger {
	return &auditLogger{
		eventChan: eventChan,
		logger:    logger,
	}
}

// Log publishes an audit event; a full channel drops the event rather than
// blocking the request path.
func (a *auditLogger) Log(host string, metrics []string, ipAddress string) {
	event := models.AuditEvent{
		TS:        time.Now().Format(time.RFC3339),
		Host:      host,
		Metrics:   metrics,
		IPAddress: ipAddress,
	}

	select {
	case a.eventChan <- event:
	default:
		a.logger.Info("audit: dropped event, channel is full")
	}
}

// Broadcaster distributes audit events to multiple subscriber channels.
//
// A blocked subscriber channel discards the event instead of stalling the
// other subscribers.
func Broadcaster(source <-chan models.AuditEvent, logger *zap.SugaredLogger, subs ...chan<- models.AuditEvent) {
	for evt := range source {
		for _, subChan := range subs {
			select {
			case subChan <- evt:
			default:
				logger.Info("audit: dropped event for blocked subscriber channel")
			}
		}
	}
	for _, subChan := range subs {
		close(subChan)
	}
}

// FileSubscriber appends audit events to a file as JSON lines.
func FileSubscriber(events <-chan models.AuditEvent, path string, logger *zap.SugaredLogger) {
	for evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			logger.Errorf("audit file subscriber: marshal: %v", err)
			continue
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Errorf("audit file subscriber: open %s: %v", path, err)
			continue
		}
		if _, err = f.Write(append(data, '\n')); err != nil {
			logger.Errorf("audit file subscriber: write: %v", err)
		}
		f.Close()
	}
}

// URLSubscriber posts audit events to an HTTP endpoint.
func URLSubscriber(events <-chan models.AuditEvent, url string, logger *zap.SugaredLogger) {
	for evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			logger.Errorf("audit url subscriber: marshal: %v", err)
			continue
		}
		resp, err := http.Post(url, "application/json", bytes.NewBuffer(data))
		if err != nil {
			logger.Errorf("audit url subscriber: post %s: %v", url, err)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
