package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Extractor  ExtractorConfig  `yaml:"extractor"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Patterns   PatternsConfig   `yaml:"patterns"`
	Batch      BatchConfig      `yaml:"batch"`
	Duplicates DuplicatesConfig `yaml:"duplicates"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `yaml:"driver"` // postgres | sqlite
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
}

// ExtractorConfig selects the PDF word source.
type ExtractorConfig struct {
	Backend   string `yaml:"backend"` // native | poppler
	Pdftotext string `yaml:"pdftotext"`
	MaxPages  int    `yaml:"max_pages"`
}

// PipelineConfig holds the per-document extraction options.
type PipelineConfig struct {
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	RequiredFields      []string      `yaml:"required_fields"`
	OptionalFields      []string      `yaml:"optional_fields"`
	Strict              bool          `yaml:"strict"`
	DocumentTimeout     time.Duration `yaml:"document_timeout"`
	ContextWindow       int           `yaml:"context_window"`
	HighThreshold       float64       `yaml:"high_threshold"`
	LowThreshold        float64       `yaml:"low_threshold"`
	TopK                int           `yaml:"top_k"`
	AmountTolerance     string        `yaml:"amount_tolerance"`
	DateLayouts         []string      `yaml:"date_layouts"`
	Normalization       Normalization `yaml:"normalization"`
}

// Normalization toggles each canonicalization pass.
type Normalization struct {
	Unicode       bool    `yaml:"unicode"`
	Ligatures     bool    `yaml:"ligatures"`
	Quotes        bool    `yaml:"quotes"`
	Dashes        bool    `yaml:"dashes"`
	Decimals      bool    `yaml:"decimals"`
	Dates         bool    `yaml:"dates"`
	Whitespace    bool    `yaml:"whitespace"`
	MergeLines    bool    `yaml:"merge_lines"`
	MergeGapRatio float64 `yaml:"merge_gap_ratio"`
}

// ClassifierConfig selects where the active model comes from.
type ClassifierConfig struct {
	Backend       string        `yaml:"backend"` // embedded | bolt | remote
	ModelVersion  string        `yaml:"model_version"`
	StorePath     string        `yaml:"store_path"`
	RemoteURL     string        `yaml:"remote_url"`
	RemoteTimeout time.Duration `yaml:"remote_timeout"`
}

type PatternsConfig struct {
	File string `yaml:"file"`
}

type BatchConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type DuplicatesConfig struct {
	Policy string `yaml:"policy"` // fixed | weighted
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "sqlite"),
			DSN:              getEnv("DB_URL", "file:invoices.db?_pragma=foreign_keys(1)"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Extractor: ExtractorConfig{
			Backend:   getEnv("PDF_BACKEND", "native"),
			Pdftotext: getEnv("PDFTOTEXT", "pdftotext"),
			MaxPages:  getEnvAsInt("PDF_MAX_PAGES", 0),
		},
		Pipeline: PipelineConfig{
			ConfidenceThreshold: getEnvAsFloat64("CONFIDENCE_THRESHOLD", 0.7),
			RequiredFields:      getEnvAsList("REQUIRED_FIELDS", []string{"InvoiceNumber", "InvoiceDate", "IssuerName", "GrossTotal"}),
			OptionalFields:      getEnvAsList("OPTIONAL_FIELDS", []string{"IssuerStreet", "IssuerPostalCode", "IssuerCity", "IssuerCountry", "NetTotal", "VatTotal"}),
			Strict:              getEnvAsBool("STRICT_VALIDATION", false),
			DocumentTimeout:     getEnvAsDuration("DOCUMENT_TIMEOUT", 2*time.Minute),
			ContextWindow:       getEnvAsInt("CONTEXT_WINDOW", 2),
			HighThreshold:       getEnvAsFloat64("HIGH_CONFIDENCE", 0.8),
			LowThreshold:        getEnvAsFloat64("LOW_CONFIDENCE", 0.3),
			TopK:                getEnvAsInt("TOP_K", 3),
			AmountTolerance:     getEnv("AMOUNT_TOLERANCE", "0.02"),
			DateLayouts:         getEnvAsList("DATE_LAYOUTS", nil),
			Normalization: Normalization{
				Unicode:       getEnvAsBool("NORMALIZE_UNICODE", true),
				Ligatures:     getEnvAsBool("NORMALIZE_LIGATURES", true),
				Quotes:        getEnvAsBool("NORMALIZE_QUOTES", true),
				Dashes:        getEnvAsBool("NORMALIZE_DASHES", true),
				Decimals:      getEnvAsBool("NORMALIZE_DECIMALS", true),
				Dates:         getEnvAsBool("NORMALIZE_DATES", true),
				Whitespace:    getEnvAsBool("NORMALIZE_WHITESPACE", true),
				MergeLines:    getEnvAsBool("MERGE_LINES", true),
				MergeGapRatio: getEnvAsFloat64("MERGE_GAP_RATIO", 0.5),
			},
		},
		Classifier: ClassifierConfig{
			Backend:       getEnv("CLASSIFIER_BACKEND", "embedded"),
			ModelVersion:  getEnv("MODEL_VERSION", ""),
			StorePath:     getEnv("MODEL_STORE", "models.db"),
			RemoteURL:     getEnv("CLASSIFIER_URL", ""),
			RemoteTimeout: getEnvAsDuration("CLASSIFIER_TIMEOUT", 10*time.Second),
		},
		Patterns: PatternsConfig{
			File: getEnv("PATTERNS_FILE", ""),
		},
		Batch: BatchConfig{
			Workers:   getEnvAsInt("BATCH_WORKERS", 4),
			QueueSize: getEnvAsInt("BATCH_QUEUE_SIZE", 256),
		},
		Duplicates: DuplicatesConfig{
			Policy: getEnv("DUPLICATE_POLICY", "fixed"),
		},
	}
}

// LoadConfigFile loads the environment configuration and overlays the keys
// present in the YAML file at path.
func LoadConfigFile(path string) (*Config, error) {
	cfg := LoadConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, NewAppError(CodeConfig, "read config file", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, NewAppError(CodeConfig, fmt.Sprintf("parse %s", path), fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}
	return cfg, nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// comma separated
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("database.driver", c.Database.Driver, OneOf("postgres", "sqlite")).
		Field("database.dsn", c.Database.DSN, Required).
		Field("server.grpc_addr", c.Server.GRPCAddr, Required).
		Field("extractor.backend", c.Extractor.Backend, OneOf("native", "poppler")).
		Field("pipeline.confidence_threshold", c.Pipeline.ConfidenceThreshold, InRange(0, 1)).
		Field("pipeline.high_threshold", c.Pipeline.HighThreshold, InRange(0, 1)).
		Field("pipeline.low_threshold", c.Pipeline.LowThreshold, InRange(0, 1)).
		Field("pipeline.normalization.merge_gap_ratio", c.Pipeline.Normalization.MergeGapRatio, InRange(0, 10)).
		Field("pipeline.amount_tolerance", c.Pipeline.AmountTolerance, Required, DecimalString).
		Field("classifier.backend", c.Classifier.Backend, OneOf("embedded", "bolt", "remote")).
		Field("duplicates.policy", c.Duplicates.Policy, OneOf("fixed", "weighted"))

	if c.Pipeline.LowThreshold > c.Pipeline.HighThreshold {
		v.Add("pipeline.low_threshold", c.Pipeline.LowThreshold, "must not exceed pipeline.high_threshold")
	}
	if c.Classifier.Backend == "remote" {
		v.Field("classifier.remote_url", c.Classifier.RemoteURL, Required)
	}
	if c.Classifier.Backend == "bolt" {
		v.Field("classifier.store_path", c.Classifier.StorePath, Required)
	}
	if c.Batch.Workers <= 0 {
		v.Add("batch.workers", c.Batch.Workers, "must be positive")
	}

	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
