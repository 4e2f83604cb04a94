// Package health serves the liveness and readiness probes of a voxlink
// process.
//
// Liveness (/healthz) only says the process is up. Readiness (/readyz) is
// gated on the recognizer warmup: until the server has pushed a silence
// buffer through its recognizer it answers 503 with a "warming" verdict so
// load balancers keep traffic away. Once warm, readiness additionally runs
// the registered dependency probes on every request.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// probeTimeout bounds a single dependency probe.
const probeTimeout = 2 * time.Second

// Probe checks one dependency the server needs to do useful work, such as
// the transcript database. Check returns nil when the dependency is
// reachable.
type Probe struct {
	// Name keys the probe's verdict in the readiness response.
	Name string

	// Check must respect ctx cancellation.
	Check func(ctx context.Context) error
}

// readiness is the /readyz response body.
type readiness struct {
	Ready      bool              `json:"ready"`
	Recognizer string            `json:"recognizer"`
	Checks     map[string]string `json:"checks,omitempty"`
}

// Handler answers the health endpoints. It starts in the warming state; the
// server flips it with [Handler.MarkWarm] once the recognizer produced its
// first transcription. Safe for concurrent use.
type Handler struct {
	warm   atomic.Bool
	probes []Probe
}

// New creates a warming Handler with the given dependency probes. Probes run
// sequentially in the order given.
func New(probes ...Probe) *Handler {
	h := &Handler{probes: make([]Probe, len(probes))}
	copy(h.probes, probes)
	return h
}

// MarkWarm opens the readiness gate after the recognizer warmup succeeded.
func (h *Handler) MarkWarm() { h.warm.Store(true) }

// Healthz is the liveness probe. A process that can answer HTTP is alive,
// warm or not.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// Readyz reports 200 once the recognizer is warm and every dependency probe
// passes, 503 otherwise. While warming the probes are skipped; their results
// would not make the server ready anyway.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := readiness{Recognizer: "warming"}
	if !h.warm.Load() {
		writeReadiness(w, http.StatusServiceUnavailable, res)
		return
	}
	res.Recognizer = "warm"
	res.Ready = true

	if len(h.probes) > 0 {
		res.Checks = make(map[string]string, len(h.probes))
	}
	for _, p := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Check(ctx)
		cancel()

		if err != nil {
			res.Checks[p.Name] = "fail: " + err.Error()
			res.Ready = false
		} else {
			res.Checks[p.Name] = "ok"
		}
	}

	status := http.StatusOK
	if !res.Ready {
		status = http.StatusServiceUnavailable
	}
	writeReadiness(w, status, res)
}

func writeReadiness(w http.ResponseWriter, status int, res readiness) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}
