package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/justLukaBB/glaeubiger-sync/clients"
	"github.com/justLukaBB/glaeubiger-sync/extraction"
	"github.com/justLukaBB/glaeubiger-sync/internal/logutil"
	"github.com/justLukaBB/glaeubiger-sync/outreach"
	"github.com/justLukaBB/glaeubiger-sync/providers/openai"
	"github.com/justLukaBB/glaeubiger-sync/threads"
)

func loggerFromViper() (*slog.Logger, error) {
	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return nil, fmt.Errorf("configuring logger: %w", err)
	}
	slog.SetDefault(logger)
	return logger, nil
}

func stateDirFromViper() (string, error) {
	dir := strings.TrimSpace(viper.GetString("state.dir"))
	if strings.HasPrefix(dir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving state dir: %w", err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	if dir == "" {
		return "", fmt.Errorf("state.dir is empty")
	}
	return dir, nil
}

func threadStoreFromViper() (outreach.ThreadStore, error) {
	baseURL := strings.TrimSpace(viper.GetString("threads.base_url"))
	if baseURL == "" {
		return nil, fmt.Errorf("threads.base_url is required (env %s_THREADS_BASE_URL)", envPrefix)
	}
	timeout := time.Duration(viper.GetInt("threads.timeout_seconds")) * time.Second
	return threads.New(baseURL, viper.GetString("threads.api_token"), timeout), nil
}

func recordStoreFromViper() (*outreach.SQLiteStore, error) {
	dbPath := strings.TrimSpace(viper.GetString("records.db_path"))
	if dbPath == "" {
		dir, err := stateDirFromViper()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(dir, "records.db")
	}
	return outreach.NewSQLiteStore(dbPath)
}

func synchronizerFromViper(logger *slog.Logger) (*clients.Synchronizer, error) {
	dir, err := stateDirFromViper()
	if err != nil {
		return nil, err
	}
	store, err := clients.NewFileStore(filepath.Join(dir, "clients"))
	if err != nil {
		return nil, err
	}
	return clients.NewSynchronizer(store, logger), nil
}

func extractorFromViper(logger *slog.Logger) (*extraction.Extractor, error) {
	opts := extraction.Options{
		Logger:           logger,
		PrimaryThreshold: viper.GetFloat64("extraction.primary_threshold"),
	}
	if path := strings.TrimSpace(viper.GetString("extraction.patterns_file")); path != "" {
		cfg, err := extraction.LoadPatternConfig(path)
		if err != nil {
			return nil, err
		}
		opts.Patterns = &cfg
	}

	baseURL := strings.TrimSpace(viper.GetString("llm.base_url"))
	apiKey := strings.TrimSpace(viper.GetString("llm.api_key"))
	if baseURL == "" && apiKey == "" {
		// No provider configured; the pattern scan carries extraction
		// alone.
		logger.Warn("extraction_llm_not_configured")
		return extraction.NewExtractor(nil, opts), nil
	}
	timeout := time.Duration(viper.GetInt("llm.timeout_seconds")) * time.Second
	client := openai.New(baseURL, apiKey, timeout)
	opts.Model = viper.GetString("llm.model")
	return extraction.NewExtractor(client, opts), nil
}

func managerFromViper(logger *slog.Logger, threadStore outreach.ThreadStore, records outreach.RecordStore) *outreach.Manager {
	return outreach.NewManager(threadStore, records, outreach.ManagerOptions{
		Logger:    logger,
		SendDelay: time.Duration(viper.GetInt("outreach.send_delay_seconds")) * time.Second,
	})
}
