package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeReadiness(t *testing.T, rec *httptest.ResponseRecorder) readiness {
	t.Helper()
	var body readiness
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz_AliveWhileWarming(t *testing.T) {
	h := New()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestReadyz_WarmingReportsUnavailable(t *testing.T) {
	probed := false
	h := New(Probe{Name: "database", Check: func(_ context.Context) error {
		probed = true
		return nil
	}})

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	body := decodeReadiness(t, rec)
	if body.Ready {
		t.Error("ready = true before warmup")
	}
	if body.Recognizer != "warming" {
		t.Errorf("recognizer = %q, want %q", body.Recognizer, "warming")
	}
	if probed {
		t.Error("dependency probe ran while still warming")
	}
}

func TestReadyz_WarmWithHealthyProbes(t *testing.T) {
	h := New(
		Probe{Name: "database", Check: func(_ context.Context) error { return nil }},
	)
	h.MarkWarm()

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeReadiness(t, rec)
	if !body.Ready {
		t.Error("ready = false after warmup with passing probes")
	}
	if body.Recognizer != "warm" {
		t.Errorf("recognizer = %q, want %q", body.Recognizer, "warm")
	}
	if body.Checks["database"] != "ok" {
		t.Errorf("database check = %q, want %q", body.Checks["database"], "ok")
	}
}

func TestReadyz_WarmWithoutProbes(t *testing.T) {
	h := New()
	h.MarkWarm()

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := decodeReadiness(t, rec); !body.Ready {
		t.Error("ready = false with no probes registered")
	}
}

func TestReadyz_ProbeFailure(t *testing.T) {
	h := New(
		Probe{Name: "database", Check: func(_ context.Context) error {
			return errors.New("connection refused")
		}},
		Probe{Name: "object-store", Check: func(_ context.Context) error { return nil }},
	)
	h.MarkWarm()

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	body := decodeReadiness(t, rec)
	if body.Ready {
		t.Error("ready = true with a failing probe")
	}
	if body.Recognizer != "warm" {
		t.Errorf("recognizer = %q, want %q", body.Recognizer, "warm")
	}
	if body.Checks["database"] != "fail: connection refused" {
		t.Errorf("database check = %q", body.Checks["database"])
	}
	if body.Checks["object-store"] != "ok" {
		t.Errorf("object-store check = %q, want %q", body.Checks["object-store"], "ok")
	}
}

func TestReadyz_ProbeRespectsCancellation(t *testing.T) {
	h := New(Probe{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	h.MarkWarm()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestReadyz_ContentType(t *testing.T) {
	h := New()
	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	ct := rec.Header().Get("Content-Type")
	if ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}
