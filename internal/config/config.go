package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed matching.yaml
var matchingYAML []byte

// Matcher index kinds.
const (
	IndexLinear = "linear"
	IndexHNSW   = "hnsw"
)

type Config struct {
	Matching MatchingConfig
	Database DatabaseConfig
	Blob     BlobConfig
	Web      WebConfig
	Log      LogConfig
}

// MatchingConfig holds the tunables of the enrollment and matching engine.
// Threshold and Normalize must only ever be read from here.
type MatchingConfig struct {
	Threshold       float64       `yaml:"threshold"`
	Normalize       bool          `yaml:"normalize"`
	DescriptorDim   int           `yaml:"descriptor_dim"`
	EnrollmentSteps int           `yaml:"enrollment_steps"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	Index           string        `yaml:"index"`
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the descriptor HNSW index (optional)
}

type BlobConfig struct {
	Endpoint       string // S3-compatible endpoint; empty keeps files in memory
	AccessKey      string
	SecretKey      string
	Region         string // defaults to us-east-1
	Bucket         string // defaults to facegate
	ForcePathStyle bool   // defaults to true
}

type WebConfig struct {
	Host           string
	Port           int
	SessionSecret  string
	CookieSecure   bool
	RateLimit      int      // requests per minute per IP on the auth endpoints
	AllowedOrigins []string // CORS origins allowed in addition to localhost
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // console or json
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envDuration reads a non-negative duration such as "24h" or "90m".
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// DefaultMatching returns the embedded matching defaults without any
// environment overrides applied.
func DefaultMatching() MatchingConfig {
	var m MatchingConfig
	if err := yaml.Unmarshal(matchingYAML, &m); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded matching.yaml: " + err.Error())
	}
	return m
}

func Load() *Config {
	m := DefaultMatching()

	index := strings.ToLower(envString("MATCH_INDEX", m.Index))
	if index != IndexLinear && index != IndexHNSW {
		index = m.Index
	}
	sessionTTL := envDuration("SESSION_TTL", m.SessionTTL)
	if sessionTTL == 0 {
		sessionTTL = m.SessionTTL
	}

	return &Config{
		Matching: MatchingConfig{
			Threshold:       envFloat("MATCH_THRESHOLD", m.Threshold),
			Normalize:       envBool("MATCH_NORMALIZE", m.Normalize),
			DescriptorDim:   envInt("DESCRIPTOR_DIM", m.DescriptorDim),
			EnrollmentSteps: envInt("ENROLLMENT_STEPS", m.EnrollmentSteps),
			SessionTTL:      sessionTTL,
			SweepInterval:   envDuration("SESSION_SWEEP_INTERVAL", m.SweepInterval),
			Index:           index,
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Blob: BlobConfig{
			Endpoint:       os.Getenv("S3_ENDPOINT"),
			AccessKey:      os.Getenv("S3_ACCESS_KEY"),
			SecretKey:      os.Getenv("S3_SECRET_KEY"),
			Region:         envString("S3_REGION", "us-east-1"),
			Bucket:         envString("S3_BUCKET", "facegate"),
			ForcePathStyle: envBool("S3_FORCE_PATH_STYLE", true),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			SessionSecret:  os.Getenv("WEB_SESSION_SECRET"),
			CookieSecure:   envBool("WEB_COOKIE_SECURE", false),
			RateLimit:      envInt("WEB_RATE_LIMIT", 30),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "console"),
		},
	}
}
