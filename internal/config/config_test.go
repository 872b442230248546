package config

import (
	"testing"
)

func validConfig() Config {
	return Config{
		HTTP:     HTTPConfig{Port: 8080},
		Postgres: PostgresConfig{DSN: "postgres://localhost/lessons"},
		Redis:    RedisConfig{Addrs: []string{"localhost:6379"}},
		Search: SearchConfig{
			VectorWeight:        0.6,
			TextWeight:          0.4,
			SingleSourcePenalty: 0.8,
			SearchBudgetMS:      2500,
			HighLoadBudgetMS:    1200,
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingPostgresDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.DSN = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing postgres dsn")
	}
}

func TestValidate_MissingRedisAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Addrs = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing redis addrs")
	}
}

func TestValidate_WeightsMustSumToOne(t *testing.T) {
	cfg := validConfig()
	cfg.Search.VectorWeight = 0.7
	cfg.Search.TextWeight = 0.4

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for weights not summing to 1.0")
	}

	expected := "search.vector_weight + search.text_weight must sum to 1.0, got 1.100"
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_PenaltyRange(t *testing.T) {
	for _, penalty := range []float64{-0.1, 0, 1.5} {
		cfg := validConfig()
		cfg.Search.SingleSourcePenalty = penalty
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for penalty %v", penalty)
		}
	}

	cfg := validConfig()
	cfg.Search.SingleSourcePenalty = 1
	if err := cfg.Validate(); err != nil {
		t.Errorf("penalty 1.0 should be valid: %v", err)
	}
}

func TestValidate_HighLoadBudgetMustNotExceedNormal(t *testing.T) {
	cfg := validConfig()
	cfg.Search.HighLoadBudgetMS = 3000
	cfg.Search.SearchBudgetMS = 2500
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for high-load budget above the normal budget")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Postgres.MaxConns != 10 {
		t.Errorf("expected MaxConns=10, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Search.VectorWeight != 0.6 || cfg.Search.TextWeight != 0.4 {
		t.Errorf("expected default weights 0.6/0.4, got %v/%v", cfg.Search.VectorWeight, cfg.Search.TextWeight)
	}
	if cfg.Search.SingleSourcePenalty != 0.8 {
		t.Errorf("expected SingleSourcePenalty=0.8, got %v", cfg.Search.SingleSourcePenalty)
	}
	if cfg.Search.MaxCandidates != 60 {
		t.Errorf("expected MaxCandidates=60, got %d", cfg.Search.MaxCandidates)
	}
	if cfg.Search.SearchBudgetMS != 2500 {
		t.Errorf("expected SearchBudgetMS=2500, got %d", cfg.Search.SearchBudgetMS)
	}
	if cfg.Search.HighLoadBudgetMS != 1200 {
		t.Errorf("expected HighLoadBudgetMS=1200, got %d", cfg.Search.HighLoadBudgetMS)
	}
	if cfg.Search.UncachedConcurrency != 50 {
		t.Errorf("expected UncachedConcurrency=50, got %d", cfg.Search.UncachedConcurrency)
	}
	if cfg.Search.FuzzySimilarityFloor != 0.35 {
		t.Errorf("expected FuzzySimilarityFloor=0.35, got %v", cfg.Search.FuzzySimilarityFloor)
	}
	if cfg.Search.SoftDistanceKM != 8 {
		t.Errorf("expected SoftDistanceKM=8, got %v", cfg.Search.SoftDistanceKM)
	}
	if cfg.Cache.KeyPrefix != "lessonsearch:" {
		t.Errorf("expected KeyPrefix='lessonsearch:', got %q", cfg.Cache.KeyPrefix)
	}
	if cfg.Cache.ResponseTTLSec != 300 {
		t.Errorf("expected ResponseTTLSec=300, got %d", cfg.Cache.ResponseTTLSec)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Postgres: PostgresConfig{MaxConns: 25, ConnLifetimeMin: 5},
		Search:   SearchConfig{VectorWeight: 0.5, TextWeight: 0.5, MaxCandidates: 20},
		Cache:    CacheConfig{KeyPrefix: "custom:"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Postgres.MaxConns != 25 {
		t.Errorf("expected MaxConns=25, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Search.VectorWeight != 0.5 || cfg.Search.TextWeight != 0.5 {
		t.Errorf("expected weights 0.5/0.5, got %v/%v", cfg.Search.VectorWeight, cfg.Search.TextWeight)
	}
	if cfg.Search.MaxCandidates != 20 {
		t.Errorf("expected MaxCandidates=20, got %d", cfg.Search.MaxCandidates)
	}
	if cfg.Cache.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Cache.KeyPrefix)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LS_TEST_DSN", "postgres://real/db")

	in := []byte("dsn: ${LS_TEST_DSN}\nprefix: ${LS_TEST_MISSING:-fallback:}\nempty: ${LS_TEST_ALSO_MISSING}\n")
	out := string(expandEnvVars(in))

	want := "dsn: postgres://real/db\nprefix: fallback:\nempty: \n"
	if out != want {
		t.Errorf("unexpected expansion:\ngot:  %q\nwant: %q", out, want)
	}
}
