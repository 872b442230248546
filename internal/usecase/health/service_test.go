package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type fakeDB struct{ err error }

func (f fakeDB) PingContext(context.Context) error { return f.err }

type fakeCache struct{ err error }

func (f fakeCache) Ping(context.Context) error { return f.err }

type fakeEmbedding struct{ err error }

func (f fakeEmbedding) HealthCheck(context.Context) error { return f.err }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(fakeDB{}, fakeCache{}, fakeEmbedding{})

	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("status: got %s, want %s", report.Status, Healthy)
	}
	for _, name := range []string{"database", "cache", "embedding"} {
		if report.Checks[name] != CheckOK {
			t.Errorf("check %s: got %s, want %s", name, report.Checks[name], CheckOK)
		}
	}
}

func TestCheck_DatabaseDown(t *testing.T) {
	svc := New(fakeDB{err: errors.New("connection refused")}, fakeCache{}, fakeEmbedding{})

	report := svc.Check(context.Background())
	if report.Status != Degraded {
		t.Errorf("status: got %s, want %s", report.Status, Degraded)
	}
	if report.Checks["database"] != CheckError {
		t.Errorf("database check: got %s", report.Checks["database"])
	}
	if report.Checks["cache"] != CheckOK {
		t.Errorf("cache check: got %s", report.Checks["cache"])
	}
}

func TestCheck_EmbeddingDownIsDegraded(t *testing.T) {
	svc := New(fakeDB{}, fakeCache{}, fakeEmbedding{err: errors.New("503")})

	report := svc.Check(context.Background())
	if report.Status != Degraded {
		t.Errorf("status: got %s, want %s", report.Status, Degraded)
	}
}

func TestCheck_OptionalComponentsSkipped(t *testing.T) {
	svc := New(fakeDB{}, nil, nil)

	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("status: got %s, want %s", report.Status, Healthy)
	}
	if _, ok := report.Checks["cache"]; ok {
		t.Error("nil cache must not be checked")
	}
	if _, ok := report.Checks["embedding"]; ok {
		t.Error("nil embedding must not be checked")
	}
}
