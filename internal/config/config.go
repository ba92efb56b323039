package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Input files. Missing files are fetched from the matching URL or S3 key.
	DatasetPath     string
	ReanalysisPath  string
	ProbabilityPath string
	ReportsPath     string
	EventsPath      string

	DatasetURL     string
	ReanalysisURL  string
	ProbabilityURL string

	S3Bucket       string
	DatasetKey     string
	ReanalysisKey  string
	ProbabilityKey string
	AWSAccessKeyID string
	AWSSecretKey   string
	AWSRegion      string

	// Chat assistant
	GeminiAPIKey string
	GeminiModel  string
	ChatTimeout  time.Duration
	// ChatSessionTTL is how long an idle chat session is kept.
	ChatSessionTTL  time.Duration
	ChatMaxSessions int

	// Classifier service
	MLServiceURL string
	MLTimeout    time.Duration

	// Report mirrors
	DatabaseURL       string
	SQLitePath        string
	KafkaBrokers      []string
	KafkaReportsTopic string

	// Index pipeline
	SiteRadiusKm     float64
	CalibrationStart int
	CalibrationEnd   int
	TrendSpacing     string

	CacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	chatTimeout, err := parseDuration("CHAT_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	sessionTTL, err := parseDuration("CHAT_SESSION_TTL", "24h")
	if err != nil {
		return nil, err
	}
	maxSessions, err := strconv.Atoi(getEnv("CHAT_MAX_SESSIONS", "1000"))
	if err != nil || maxSessions < 0 {
		return nil, errors.New("invalid CHAT_MAX_SESSIONS")
	}
	mlTimeout, err := parseDuration("ML_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	radius, err := strconv.ParseFloat(getEnv("SITE_RADIUS_KM", "0"), 64)
	if err != nil || radius < 0 {
		return nil, errors.New("invalid SITE_RADIUS_KM")
	}
	calStart, err := strconv.Atoi(getEnv("CALIBRATION_START", "0"))
	if err != nil || calStart < 0 {
		return nil, errors.New("invalid CALIBRATION_START")
	}
	calEnd, err := strconv.Atoi(getEnv("CALIBRATION_END", "0"))
	if err != nil || calEnd < 0 {
		return nil, errors.New("invalid CALIBRATION_END")
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("GO_ENV", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatasetPath:     getEnv("DATASET_PATH", "dataset_clima.csv"),
		ReanalysisPath:  getEnv("REANALYSIS_PATH", "data_stream-moda.csv"),
		ProbabilityPath: getEnv("PROBABILITY_PATH", "dataset_modelo.csv"),
		ReportsPath:     getEnv("REPORTS_PATH", "reportes_usuarios.csv"),
		EventsPath:      os.Getenv("EVENTS_PATH"),

		DatasetURL:     os.Getenv("DATASET_URL"),
		ReanalysisURL:  os.Getenv("REANALYSIS_URL"),
		ProbabilityURL: os.Getenv("PROBABILITY_URL"),

		S3Bucket:       os.Getenv("S3_BUCKET"),
		DatasetKey:     os.Getenv("DATASET_KEY"),
		ReanalysisKey:  os.Getenv("REANALYSIS_KEY"),
		ProbabilityKey: os.Getenv("PROBABILITY_KEY"),
		AWSAccessKeyID: os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:   os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSRegion:      os.Getenv("AWS_REGION"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		ChatTimeout:  chatTimeout,

		ChatSessionTTL:  sessionTTL,
		ChatMaxSessions: maxSessions,

		MLServiceURL: strings.TrimRight(os.Getenv("ML_SERVICE_URL"), "/"),
		MLTimeout:    mlTimeout,

		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SQLitePath:        os.Getenv("SQLITE_PATH"),
		KafkaBrokers:      parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaReportsTopic: getEnv("KAFKA_REPORTS_TOPIC", "drought-reports"),

		SiteRadiusKm:     radius,
		CalibrationStart: calStart,
		CalibrationEnd:   calEnd,
		TrendSpacing:     getEnv("TREND_SPACING", "steps"),

		CacheSize: parseCacheSize(),
	}

	if cfg.TrendSpacing != "steps" && cfg.TrendSpacing != "calendar" {
		return nil, fmt.Errorf("invalid TREND_SPACING %q", cfg.TrendSpacing)
	}
	if cfg.CalibrationStart > 0 && cfg.CalibrationEnd > 0 && cfg.CalibrationEnd < cfg.CalibrationStart {
		return nil, errors.New("CALIBRATION_END is before CALIBRATION_START")
	}
	if cfg.DatabaseURL != "" && cfg.SQLitePath != "" {
		return nil, errors.New("DATABASE_URL and SQLITE_PATH are mutually exclusive")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaReportsTopic == "" {
		return nil, errors.New("KAFKA_REPORTS_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// ChatEnabled reports whether a Gemini key is configured.
func (c *Config) ChatEnabled() bool { return c.GeminiAPIKey != "" }

// ClassifierEnabled reports whether a model service is configured.
func (c *Config) ClassifierEnabled() bool { return c.MLServiceURL != "" }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseCacheSize() int {
	if s := os.Getenv("CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 16
}
