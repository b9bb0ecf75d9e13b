package agent

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// AgentConfig holds every knob of the agent. It is loaded once at startup;
// changing it requires a restart.
type AgentConfig struct {
	// ServerURL is the base URL of the central server
	ServerURL string

	// ServerName identifies this host in transmitted samples
	ServerName string

	// PollInterval is the metrics collection period in seconds
	PollInterval int

	// ReportInterval is the queue flush period in seconds
	ReportInterval int

	// BatchSize is the maximum number of samples per transmitted batch
	BatchSize int

	// QueueCapacity bounds the sample queue; oldest samples are dropped beyond it
	QueueCapacity int

	// RetryAttempts is the number of retries after a failed transmission
	RetryAttempts int

	// RetryBackoff is the base backoff in seconds, doubled on each retry
	RetryBackoff int

	// RateLimit is the number of concurrent transmit workers
	RateLimit int

	// Key enables HMAC signing of request bodies when non-empty
	Key string
}

// fileConfig mirrors the on-disk config.json contract.
type fileConfig struct {
	CentralServer  string `json:"central_server"`
	ServerName     string `json:"server_name"`
	CollectInterval int   `json:"collect_interval"`
	ReportInterval int    `json:"report_interval"`
	BatchSize      int    `json:"batch_size"`
	QueueCapacity  int    `json:"queue_capacity"`
	RetryAttempts  int    `json:"retry_attempts"`
	RetryDelay     int    `json:"retry_delay"`
	RateLimit      int    `json:"rate_limit"`
	Key            string `json:"key"`
}

// NewAgentConfig builds the configuration with priority
// defaults < config file < flags < environment variables.
func NewAgentConfig() (*AgentConfig, error) {
	hostname, _ := os.Hostname()

	config := &AgentConfig{
		ServerURL:      "http://localhost:8080",
		ServerName:     hostname,
		PollInterval:   2,
		ReportInterval: 10,
		BatchSize:      50,
		QueueCapacity:  1000,
		RetryAttempts:  3,
		RetryBackoff:   1,
		RateLimit:      5,
		Key:            "",
	}

	configPath := scanConfigPath()
	if configPath != "" {
		if err := applyFileConfig(configPath, config); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
	}

	flag.String("c", configPath, "Path to the JSON config file")
	address := flag.String("a", config.ServerURL, "Central server address")
	serverName := flag.String("n", config.ServerName, "Host identifier reported with every sample")
	pollInterval := flag.Int("p", config.PollInterval, "The frequency of polling host metrics, seconds")
	reportInterval := flag.Int("r", config.ReportInterval, "The frequency of flushing the queue, seconds")
	batchSize := flag.Int("b", config.BatchSize, "Max samples per transmitted batch")
	queueCapacity := flag.Int("q", config.QueueCapacity, "Sample queue capacity")
	retryAttempts := flag.Int("t", config.RetryAttempts, "Retry attempts per batch")
	retryBackoff := flag.Int("d", config.RetryBackoff, "Base retry backoff, seconds")
	rateLimit := flag.Int("l", config.RateLimit, "Rate limit")
	key := flag.String("k", config.Key, "Key for hash")
	flag.Parse()

	envIntVars := map[string]*int{
		"POLL_INTERVAL":   pollInterval,
		"REPORT_INTERVAL": reportInterval,
		"BATCH_SIZE":      batchSize,
		"QUEUE_CAPACITY":  queueCapacity,
		"RETRY_ATTEMPTS":  retryAttempts,
		"RETRY_BACKOFF":   retryBackoff,
		"RATE_LIMIT":      rateLimit,
	}

	envStrVars := map[string]*string{
		"ADDRESS":     address,
		"SERVER_NAME": serverName,
		"KEY":         key,
	}

	for envVar, flag := range envIntVars {
		if envValue := os.Getenv(envVar); envValue != "" {
			interval, err := strconv.Atoi(envValue)
			if err != nil {
				log.Fatalf("Invalid %s value: %s", envVar, envValue)
			}
			*flag = interval
		}
	}

	for envVar, flag := range envStrVars {
		if envValue := os.Getenv(envVar); envValue != "" {
			*flag = envValue
		}
	}

	config.ServerURL = normalizeServerURL(*address)
	config.ServerName = *serverName
	config.PollInterval = *pollInterval
	config.ReportInterval = *reportInterval
	config.BatchSize = *batchSize
	config.QueueCapacity = *queueCapacity
	config.RetryAttempts = *retryAttempts
	config.RetryBackoff = *retryBackoff
	config.RateLimit = *rateLimit
	config.Key = *key

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// scanConfigPath finds the config file path before flag.Parse runs,
// so file values can serve as flag defaults.
func scanConfigPath() string {
	path := os.Getenv("CONFIG")
	args := os.Args[1:]
	for i, arg := range args {
		if arg == "-c" || arg == "--c" {
			if i+1 < len(args) {
				path = args[i+1]
			}
		} else if strings.HasPrefix(arg, "-c=") || strings.HasPrefix(arg, "--c=") {
			path = strings.SplitN(arg, "=", 2)[1]
		}
	}
	return path
}

func applyFileConfig(path string, config *AgentConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return err
	}
	if fc.CentralServer != "" {
		config.ServerURL = fc.CentralServer
	}
	if fc.ServerName != "" {
		config.ServerName = fc.ServerName
	}
	if fc.CollectInterval > 0 {
		config.PollInterval = fc.CollectInterval
	}
	if fc.ReportInterval > 0 {
		config.ReportInterval = fc.ReportInterval
	}
	if fc.BatchSize > 0 {
		config.BatchSize = fc.BatchSize
	}
	if fc.QueueCapacity > 0 {
		config.QueueCapacity = fc.QueueCapacity
	}
	if fc.RetryAttempts > 0 {
		config.RetryAttempts = fc.RetryAttempts
	}
	if fc.RetryDelay > 0 {
		config.RetryBackoff = fc.RetryDelay
	}
	if fc.RateLimit > 0 {
		config.RateLimit = fc.RateLimit
	}
	if fc.Key != "" {
		config.Key = fc.Key
	}
	return nil
}

func normalizeServerURL(address string) string {
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return strings.TrimRight(address, "/")
	}
	return "http://" + strings.TrimRight(address, "/")
}

func (c *AgentConfig) validate() error {
	if c.ServerName == "" {
		return fmt.Errorf("server name is empty and hostname lookup failed")
	}
	if c.PollInterval <= 0 || c.ReportInterval <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	if c.BatchSize <= 0 || c.QueueCapacity < c.BatchSize {
		return fmt.Errorf("queue capacity %d must be at least batch size %d", c.QueueCapacity, c.BatchSize)
	}
	if c.RetryAttempts < 0 || c.RetryBackoff <= 0 {
		return fmt.Errorf("invalid retry policy")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	return nil
}
