// Package config provides the central server configuration.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// GaugeType represents the type string for gauge metrics.
	GaugeType = "gauge"

	// CounterType represents the type string for counter metrics.
	CounterType = "counter"
)

// ServerConfig holds the central server settings, loaded once at startup
// with priority defaults < config file < flags < environment variables.
type ServerConfig struct {
	Address         string `yaml:"address"`
	StoreInterval   int    `yaml:"store_interval"`
	FileStoragePath string `yaml:"file_storage_path"`
	Restore         bool   `yaml:"restore"`
	DatabaseDSN     string `yaml:"database_dsn"`
	RedisAddr       string `yaml:"redis_addr"`
	RedisDB         int    `yaml:"redis_db"`
	Key             string `yaml:"key"`
	AuditFile       string `yaml:"audit_file"`
	AuditURL        string `yaml:"audit_url"`
}

// NewServerConfig parses flags, the optional YAML config file and the
// environment into a ServerConfig.
func NewServerConfig() (*ServerConfig, error) {
	config := &ServerConfig{
		Address:         "localhost:8080",
		StoreInterval:   300,
		FileStoragePath: "./data/metrics.json",
		Restore:         false,
		DatabaseDSN:     "",
		RedisAddr:       "",
		RedisDB:         0,
		Key:             "",
		AuditFile:       "",
		AuditURL:        "",
	}

	configPath := scanConfigPath()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
	}

	flag.String("c", configPath, "path to YAML config file")
	address := flag.String("a", config.Address, "address")
	storeInterval := flag.Int("i", config.StoreInterval, "store in file interval")
	fileStoragePath := flag.String("f", config.FileStoragePath, "path to store file")
	restoreFlag := flag.Bool("r", config.Restore, "bool flag, describe restore metrics from file or not")
	databaseDSN := flag.String("d", config.DatabaseDSN, "database dsn")
	redisAddr := flag.String("redis", config.RedisAddr, "redis address, enables the redis storage backend")
	redisDB := flag.Int("redis-db", config.RedisDB, "redis database number")
	key := flag.String("k", config.Key, "key for hash verification")
	auditFile := flag.String("audit-file", config.AuditFile, "file to append audit events to")
	auditURL := flag.String("audit-url", config.AuditURL, "URL to post audit events to")
	flag.Parse()

	envVars := map[string]*string{
		"ADDRESS":           address,
		"FILE_STORAGE_PATH": fileStoragePath,
		"DATABASE_DSN":      databaseDSN,
		"REDIS_ADDR":        redisAddr,
		"KEY":               key,
		"AUDIT_FILE":        auditFile,
		"AUDIT_URL":         auditURL,
	}

	for envVar, flag := range envVars {
		if envValue := os.Getenv(envVar); envValue != "" {
			*flag = envValue
		}
	}

	if envStoreInterval := os.Getenv("STORE_INTERVAL"); envStoreInterval != "" {
		interval, err := strconv.Atoi(envStoreInterval)
		if err != nil {
			return nil, err
		}
		*storeInterval = interval
	}

	if envRedisDB := os.Getenv("REDIS_DB"); envRedisDB != "" {
		db, err := strconv.Atoi(envRedisDB)
		if err != nil {
			return nil, err
		}
		*redisDB = db
	}

	if envRestoreFlag := os.Getenv("RESTORE"); envRestoreFlag != "" {
		restore, err := strconv.ParseBool(envRestoreFlag)
		if err != nil {
			return nil, err
		}
		*restoreFlag = restore
	}

	config.Address = *address
	config.StoreInterval = *storeInterval
	config.FileStoragePath = *fileStoragePath
	config.Restore = *restoreFlag
	config.DatabaseDSN = *databaseDSN
	config.RedisAddr = *redisAddr
	config.RedisDB = *redisDB
	config.Key = *key
	config.AuditFile = *auditFile
	config.AuditURL = *auditURL

	if config.DatabaseDSN != "" && config.RedisAddr != "" {
		return nil, fmt.Errorf("database dsn and redis address are mutually exclusive")
	}

	return config, nil
}

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
