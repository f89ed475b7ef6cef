package config

import (
	"testing"
	"time"
)

func TestDefaultMatching(t *testing.T) {
	m := DefaultMatching()

	if m.Threshold != 0.6 {
		t.Errorf("expected threshold 0.6, got %v", m.Threshold)
	}
	if m.Normalize {
		t.Error("expected normalize to default to false")
	}
	if m.DescriptorDim != 128 {
		t.Errorf("expected descriptor dim 128, got %d", m.DescriptorDim)
	}
	if m.EnrollmentSteps != 5 {
		t.Errorf("expected 5 enrollment steps, got %d", m.EnrollmentSteps)
	}
	if m.SessionTTL != 24*time.Hour {
		t.Errorf("expected session TTL 24h, got %v", m.SessionTTL)
	}
	if m.SweepInterval != time.Hour {
		t.Errorf("expected sweep interval 1h, got %v", m.SweepInterval)
	}
	if m.Index != IndexLinear {
		t.Errorf("expected linear index, got %q", m.Index)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Matching != DefaultMatching() {
		t.Errorf("expected matching defaults, got %+v", cfg.Matching)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Web.Port)
	}
	if cfg.Web.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %q", cfg.Web.Host)
	}
	if cfg.Blob.Region != "us-east-1" {
		t.Errorf("expected region us-east-1, got %q", cfg.Blob.Region)
	}
	if !cfg.Blob.ForcePathStyle {
		t.Error("expected path-style addressing by default")
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected 25 open conns, got %d", cfg.Database.MaxOpenConns)
	}
}

func TestLoad_MatchingOverrides(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "0.45")
	t.Setenv("MATCH_NORMALIZE", "true")
	t.Setenv("DESCRIPTOR_DIM", "512")
	t.Setenv("ENROLLMENT_STEPS", "3")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("SESSION_SWEEP_INTERVAL", "0s")
	t.Setenv("MATCH_INDEX", "HNSW")

	m := Load().Matching

	if m.Threshold != 0.45 {
		t.Errorf("expected threshold 0.45, got %v", m.Threshold)
	}
	if !m.Normalize {
		t.Error("expected normalize to be enabled")
	}
	if m.DescriptorDim != 512 {
		t.Errorf("expected descriptor dim 512, got %d", m.DescriptorDim)
	}
	if m.EnrollmentSteps != 3 {
		t.Errorf("expected 3 steps, got %d", m.EnrollmentSteps)
	}
	if m.SessionTTL != 2*time.Hour {
		t.Errorf("expected TTL 2h, got %v", m.SessionTTL)
	}
	if m.SweepInterval != 0 {
		t.Errorf("expected sweep disabled, got %v", m.SweepInterval)
	}
	if m.Index != IndexHNSW {
		t.Errorf("expected hnsw index, got %q", m.Index)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(*Config) bool
	}{
		{"negative threshold", "MATCH_THRESHOLD", "-1", func(c *Config) bool { return c.Matching.Threshold == 0.6 }},
		{"zero threshold", "MATCH_THRESHOLD", "0", func(c *Config) bool { return c.Matching.Threshold == 0.6 }},
		{"garbage threshold", "MATCH_THRESHOLD", "strict", func(c *Config) bool { return c.Matching.Threshold == 0.6 }},
		{"garbage bool", "MATCH_NORMALIZE", "maybe", func(c *Config) bool { return !c.Matching.Normalize }},
		{"zero dim", "DESCRIPTOR_DIM", "0", func(c *Config) bool { return c.Matching.DescriptorDim == 128 }},
		{"negative steps", "ENROLLMENT_STEPS", "-5", func(c *Config) bool { return c.Matching.EnrollmentSteps == 5 }},
		{"zero ttl", "SESSION_TTL", "0s", func(c *Config) bool { return c.Matching.SessionTTL == 24*time.Hour }},
		{"negative interval", "SESSION_SWEEP_INTERVAL", "-1m", func(c *Config) bool { return c.Matching.SweepInterval == time.Hour }},
		{"unknown index", "MATCH_INDEX", "faiss", func(c *Config) bool { return c.Matching.Index == IndexLinear }},
		{"invalid port", "WEB_PORT", "http", func(c *Config) bool { return c.Web.Port == 8080 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if !tt.check(Load()) {
				t.Errorf("%s=%q did not fall back to the default", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_BlobConfig(t *testing.T) {
	t.Setenv("S3_ENDPOINT", "http://127.0.0.1:9000")
	t.Setenv("S3_ACCESS_KEY", "admin")
	t.Setenv("S3_SECRET_KEY", "secret")
	t.Setenv("S3_BUCKET", "faces")
	t.Setenv("S3_FORCE_PATH_STYLE", "false")

	b := Load().Blob

	if b.Endpoint != "http://127.0.0.1:9000" {
		t.Errorf("unexpected endpoint %q", b.Endpoint)
	}
	if b.AccessKey != "admin" || b.SecretKey != "secret" {
		t.Error("credentials not loaded")
	}
	if b.Bucket != "faces" {
		t.Errorf("expected bucket faces, got %q", b.Bucket)
	}
	if b.ForcePathStyle {
		t.Error("expected path-style addressing to be disabled")
	}
}

func TestLoad_WebConfig(t *testing.T) {
	t.Setenv("WEB_HOST", "127.0.0.1")
	t.Setenv("WEB_PORT", "9090")
	t.Setenv("WEB_SESSION_SECRET", "s3cret")
	t.Setenv("WEB_COOKIE_SECURE", "1")
	t.Setenv("WEB_RATE_LIMIT", "5")
	t.Setenv("WEB_ALLOWED_ORIGINS", " https://a.example ,,https://b.example")

	w := Load().Web

	if w.Host != "127.0.0.1" || w.Port != 9090 {
		t.Errorf("unexpected bind address %s:%d", w.Host, w.Port)
	}
	if w.SessionSecret != "s3cret" {
		t.Errorf("unexpected session secret %q", w.SessionSecret)
	}
	if !w.CookieSecure {
		t.Error("expected secure cookies")
	}
	if w.RateLimit != 5 {
		t.Errorf("expected rate limit 5, got %d", w.RateLimit)
	}
	if len(w.AllowedOrigins) != 2 || w.AllowedOrigins[0] != "https://a.example" || w.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected allowed origins %q", w.AllowedOrigins)
	}
}
